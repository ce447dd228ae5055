package scanner

import (
	"encoding/json"

	"cleanshot/config"
	"cleanshot/logging"
	"cleanshot/types"
)

// SessionStore persists finished run summaries. Implemented by database.Store.
type SessionStore interface {
	SaveSession(summary types.RunSummary) error
}

// settingsJSON echoes the run settings into the summary
func settingsJSON(s config.Settings) json.RawMessage {
	data, err := json.Marshal(s)
	if err != nil {
		logging.LogWarning("Cannot encode settings for run summary: %v", err)
		return json.RawMessage("{}")
	}
	return data
}

// saveSession stores the summary when a store is configured. A failure is
// logged and never turns a finished run into a failed one.
func saveSession(store SessionStore, summary types.RunSummary) {
	if store == nil {
		return
	}
	if err := store.SaveSession(summary); err != nil {
		logging.LogError("Failed to save session %s: %v", summary.ID, err)
		return
	}
	logging.DebugLog("Saved session %s (%s)", summary.ID, summary.Mode)
}

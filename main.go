package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"cleanshot/api"
	"cleanshot/config"
	"cleanshot/database"
	"cleanshot/faceverify"
	"cleanshot/imageprocessor"
	"cleanshot/ledger"
	"cleanshot/logging"
	"cleanshot/scanner"
	"cleanshot/signalhandler"
	"cleanshot/types"
	"cleanshot/utils"
)

func main() {
	signalhandler.SetupHandler()
	runtime.GOMAXPROCS(signalhandler.GetOptimalProcs())

	args := utils.ParseArguments()
	command, hasCommand := args["command"]

	if utils.Flag(args, "debug") {
		logging.SetDebug(true)
		logPath := config.DefaultLogFile
		if customLogPath, ok := args["logfile"]; ok && customLogPath != "" {
			logPath = customLogPath
		}
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		} else {
			fmt.Printf("Debug mode enabled. Logging to: %s\n", logPath)
		}
	} else if logPath := args["logfile"]; logPath != "" {
		if err := logging.SetupLogger(logPath); err != nil {
			fmt.Printf("Warning: Failed to setup logging: %v\n", err)
		}
	}
	defer logging.CloseLogger()

	showUsage := !hasCommand
	if command == "organize" && args["folder"] == "" {
		showUsage = true
	}
	if command == "search" && (args["folder"] == "" || args["reference"] == "") {
		showUsage = true
	}
	if showUsage {
		utils.PrintUsage()
		os.Exit(1)
	}

	settings, err := loadSettings(args)
	if err != nil {
		log.Fatalf("Error loading settings: %v", err)
	}

	switch command {
	case "organize":
		handleOrganizeCommand(args, settings)
	case "search":
		handleSearchCommand(args, settings)
	case "undo":
		handleUndoCommand(args, settings)
	case "history":
		handleHistoryCommand(args, settings)
	case "serve":
		handleServeCommand(args, settings)
	case "presets":
		handlePresetsCommand()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		utils.PrintUsage()
		os.Exit(1)
	}
}

// loadSettings reads the YAML file and applies command-line overrides
func loadSettings(args map[string]string) (config.Settings, error) {
	path := args["config"]
	if path == "" {
		path = utils.GetDefaultConfigPath()
	}
	s, err := config.Load(path)
	if err != nil {
		return s, err
	}

	if v, ok := args["preset-blur"]; ok {
		if s.BlurThreshold, err = config.BlurPreset(v); err != nil {
			return s, err
		}
	}
	if v, ok := args["preset-similarity"]; ok {
		if s.SimilarityThreshold, err = config.SimilarityPreset(v); err != nil {
			return s, err
		}
	}
	if v, ok := args["blur"]; ok {
		if s.BlurThreshold, err = utils.ParseIntInRange("blur threshold", v, 0, config.MaxBlurThreshold); err != nil {
			return s, err
		}
	}
	if v, ok := args["similarity"]; ok {
		if s.SimilarityThreshold, err = utils.ParseIntInRange("similarity threshold", v, 0, config.MaxSimilarityThreshold); err != nil {
			return s, err
		}
	}
	if v, ok := args["threshold"]; ok {
		t, err := utils.ParseThreshold(v)
		if err != nil {
			fmt.Printf("Warning: %v\n", err)
		}
		s.FaceMatchThreshold = t
	}
	if v := args["verifier"]; v != "" {
		s.VerifierURL = v
	}
	if v := args["cascade"]; v != "" {
		s.CascadePath = v
	}
	if utils.Flag(args, "no-faces") {
		s.DetectFaces = false
	}
	if utils.Flag(args, "preview") {
		s.DryRun = true
	}
	return s, s.Validate()
}

// resolvePath prefers the flag, then an absolute path from the settings file,
// then the file next to the executable
func resolvePath(flag, configured, fallback string) string {
	if flag != "" {
		return flag
	}
	if filepath.IsAbs(configured) {
		return configured
	}
	return fallback
}

func openLedger(args map[string]string, settings config.Settings) *ledger.Ledger {
	l, err := ledger.Open(resolvePath(args["ledger"], settings.LedgerPath, utils.GetDefaultLedgerPath()))
	if err != nil {
		log.Fatalf("Error opening undo ledger: %v", err)
	}
	return l
}

// openStore opens the session database, retrying while another process holds it
func openStore(args map[string]string, settings config.Settings) *database.Store {
	flag := args["database"]
	if flag == "" {
		flag = args["db"]
	}
	dbPath := resolvePath(flag, settings.DatabasePath, utils.GetDefaultDatabasePath())

	var store *database.Store
	var err error
	const maxRetries = 3
	for i := 0; i < maxRetries; i++ {
		store, err = database.Open(dbPath)
		if err == nil {
			return store
		}
		if i < maxRetries-1 {
			log.Printf("Error initializing database (attempt %d/%d): %v - retrying...", i+1, maxRetries, err)
			time.Sleep(time.Second * time.Duration(i+1))
		}
	}
	log.Printf("Warning: session history disabled: %v", err)
	return nil
}

// sessionStore avoids handing a typed nil to interface fields
func sessionStore(s *database.Store) api.SessionStore {
	if s == nil {
		return nil
	}
	return s
}

func handleOrganizeCommand(args map[string]string, settings config.Settings) {
	folderPath := args["folder"]
	if err := config.ValidateFolder(folderPath); err != nil {
		log.Fatalf("%v", err)
	}

	l := openLedger(args, settings)
	store := openStore(args, settings)
	if store != nil {
		defer store.Close()
	}

	fmt.Printf("Organizing photos in %s\n", folderPath)
	fmt.Printf("Blur threshold: %d (%s), duplicate threshold: %d (%s), faces: %v\n",
		settings.BlurThreshold, config.PresetName(config.BlurPresets, settings.BlurThreshold),
		settings.SimilarityThreshold, config.PresetName(config.SimilarityPresets, settings.SimilarityThreshold),
		settings.DetectFaces)
	if settings.DryRun {
		fmt.Println("Preview mode: nothing will be moved")
	}

	opts := scanner.OrganizerOptions{
		Folder:   folderPath,
		Settings: settings,
		Ledger:   l,
		Observer: newConsoleObserver(),
	}
	if store != nil {
		opts.Store = store
	}
	org, err := scanner.NewOrganizer(opts)
	if err != nil {
		log.Fatalf("Error preparing run: %v", err)
	}
	cancel := signalhandler.OnInterrupt(org.Stop)
	defer cancel()

	startTime := time.Now()
	summary, err := org.Run(context.Background())
	if err != nil {
		log.Fatalf("Error organizing folder: %v", err)
	}

	c := summary.Results.Counts
	fmt.Printf("\n\nOrganizing %s in %v.\n", outcome(summary), time.Since(startTime).Round(time.Millisecond))
	fmt.Printf("\nSummary:\n")
	fmt.Printf("- Total images processed: %d\n", c.Total)
	fmt.Printf("- Good: %d\n", c.Good)
	fmt.Printf("- Blurry: %d\n", c.Blurry)
	fmt.Printf("- Duplicates: %d\n", c.Duplicate)
	fmt.Printf("- With faces: %d\n", c.FacePhotos)
	fmt.Printf("- Skipped: %d\n", c.Skipped)
	if c.Failed > 0 {
		fmt.Printf("- Left in place after a failed move: %d\n", c.Failed)
	}
	fmt.Printf("Undo ledger: %s (%d operations)\n", l.Path(), l.Len())

	if settings.DryRun && !summary.Results.Stopped {
		printPreview(summary.Results.Items)
		if utils.Flag(args, "apply") {
			applied, errs := scanner.ApplyResults(summary.Results.Items, folderPath, l, settings.DetectFaces)
			for _, err := range errs {
				fmt.Printf("Warning: %v\n", err)
			}
			fmt.Printf("Applied %d previewed decisions.\n", len(applied))
		}
	}

	exportRun(args, org, summary)
}

func outcome(summary types.RunSummary) string {
	if summary.Results.Stopped {
		return "stopped"
	}
	return "complete"
}

func printPreview(items []types.ProcessingResult) {
	fmt.Printf("\nPreview:\n")
	for _, r := range items {
		line := fmt.Sprintf("  %-10s %s", r.Category, filepath.Base(r.Path))
		if r.DuplicateOf != "" {
			line += " (duplicate of " + filepath.Base(r.DuplicateOf) + ")"
		}
		if r.FaceCount > 0 {
			line += fmt.Sprintf(" [%d faces]", r.FaceCount)
		}
		fmt.Println(line)
	}
}

type exporter interface {
	ExportLog(path string) error
}

func exportRun(args map[string]string, run exporter, summary types.RunSummary) {
	if p := args["export-log"]; p != "" {
		if err := run.ExportLog(p); err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			fmt.Printf("Log exported to %s\n", p)
		}
	}
	if p := args["export-summary"]; p != "" {
		if err := summary.WriteJSON(p); err != nil {
			fmt.Printf("Warning: %v\n", err)
		} else {
			fmt.Printf("Summary exported to %s\n", p)
		}
	}
}

func handleSearchCommand(args map[string]string, settings config.Settings) {
	folderPath := args["folder"]
	if err := config.ValidateFolder(folderPath); err != nil {
		log.Fatalf("%v", err)
	}
	referencePath := args["reference"]
	if _, err := os.Stat(referencePath); os.IsNotExist(err) {
		log.Fatalf("Reference image does not exist: %s", referencePath)
	}

	codec := imageprocessor.NewCodec(settings.MaxFileSize)
	defer codec.Close()
	verifier, err := faceverify.FromSettings(settings, codec)
	if err != nil {
		log.Fatalf("Face search unavailable: %v (set --verifier=URL or verifier_url in the config file)", err)
	}

	l := openLedger(args, settings)
	store := openStore(args, settings)
	if store != nil {
		defer store.Close()
	}

	fmt.Printf("Searching %s for faces matching %s\n", folderPath, filepath.Base(referencePath))
	fmt.Printf("Threshold: %.2f, method: %s\n", settings.FaceMatchThreshold, verifier.Method())

	opts := scanner.FaceSearchOptions{
		Folder:    folderPath,
		Reference: referencePath,
		Settings:  settings,
		Verifier:  verifier,
		Ledger:    l,
		Loader:    codec,
		Observer:  newConsoleObserver(),
	}
	if store != nil {
		opts.Store = store
	}
	search, err := scanner.NewFaceSearch(opts)
	if err != nil {
		log.Fatalf("Error preparing search: %v", err)
	}
	cancel := signalhandler.OnInterrupt(search.Stop)
	defer cancel()

	startTime := time.Now()
	summary, err := search.Run(context.Background())
	if err != nil {
		log.Fatalf("Error searching folder: %v", err)
	}

	s := summary.Results.Search
	fmt.Printf("\n\nSearch %s in %v.\n", outcome(summary), time.Since(startTime).Round(time.Millisecond))
	fmt.Printf("- Searched: %d\n", s.TotalSearched)
	fmt.Printf("- Skipped: %d\n", s.Skipped)
	fmt.Printf("- Matched: %d\n", s.Matched)
	if s.Matched > 0 && !settings.DryRun {
		fmt.Printf("Matches copied to %s\n", s.OutputFolder)
	}

	exportRun(args, search, summary)
}

func handleUndoCommand(args map[string]string, settings config.Settings) {
	l := openLedger(args, settings)
	if l.Len() == 0 {
		fmt.Println("Nothing to undo.")
		return
	}

	if utils.Flag(args, "all") {
		undone, errs := l.UndoAll()
		for _, err := range errs {
			fmt.Printf("Warning: %v\n", err)
		}
		fmt.Printf("Undid %d operations, %d failed, %d remaining.\n", undone, len(errs), l.Len())
		return
	}

	if utils.Flag(args, "skip") {
		op, err := l.DropLast()
		if err != nil {
			log.Fatalf("Cannot drop ledger entry: %v", err)
		}
		fmt.Printf("Dropped %s without moving any file\n", op)
		fmt.Printf("%d operations remaining.\n", l.Len())
		return
	}

	op, err := l.UndoLast()
	switch {
	case err == nil:
		fmt.Printf("Undid %s\n", op)
	case errors.Is(err, ledger.ErrAlreadyMissing):
		fmt.Printf("Skipped %s: %v\n", op, err)
	case errors.Is(err, ledger.ErrSourceOccupied):
		log.Fatalf("Undo blocked: %v (use undo --skip to drop this entry)", err)
	default:
		log.Fatalf("Undo failed: %v", err)
	}
	fmt.Printf("%d operations remaining.\n", l.Len())
}

func handleHistoryCommand(args map[string]string, settings config.Settings) {
	store := openStore(args, settings)
	if store == nil {
		os.Exit(1)
	}
	defer store.Close()

	limit := 10
	if v := args["limit"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("Invalid limit: %s", v)
		}
		limit = n
	}

	sessions, err := store.ListSessions(limit)
	if err != nil {
		log.Fatalf("Error reading history: %v", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions recorded yet.")
		return
	}

	for _, s := range sessions {
		fmt.Printf("%s  %-8s  %s\n", s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.Mode, s.Folder)
		if s.Mode == types.ModeSearch && s.Results.Search != nil {
			fmt.Printf("    matched %d of %d (%s)\n", s.Results.Search.Matched, s.Results.Search.TotalSearched, s.Results.Search.Method)
		} else {
			c := s.Results.Counts
			fmt.Printf("    %d images: %d good, %d blurry, %d duplicate, %d faces, %d skipped, %d failed\n",
				c.Total, c.Good, c.Blurry, c.Duplicate, c.FacePhotos, c.Skipped, c.Failed)
		}
		if s.Results.Stopped {
			fmt.Println("    (stopped early)")
		}
	}

	if stats, err := store.GetSessionStats(); err == nil {
		fmt.Printf("\n%d sessions (%d organize, %d search)\n", stats.TotalSessions, stats.OrganizeSessions, stats.SearchSessions)
	}
}

func handleServeCommand(args map[string]string, settings config.Settings) {
	addr := args["addr"]
	if addr == "" {
		addr = "127.0.0.1:8080"
	}

	l := openLedger(args, settings)
	store := openStore(args, settings)
	if store != nil {
		defer store.Close()
	}

	app := api.NewApp(settings, l, sessionStore(store))
	srv := &http.Server{Addr: addr, Handler: api.NewRouter(app)}

	var shutdownOnce sync.Once
	cancel := signalhandler.OnInterrupt(func() {
		app.StopAll()
		shutdownOnce.Do(func() {
			go func() {
				ctx, done := context.WithTimeout(context.Background(), 30*time.Second)
				defer done()
				if err := app.Shutdown(ctx); err != nil {
					log.Printf("Runs did not stop in time: %v", err)
				}
				srv.Shutdown(ctx)
			}()
		})
	})
	defer cancel()

	fmt.Printf("Serving on http://%s\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}

func handlePresetsCommand() {
	fmt.Println("Blur presets (higher is stricter):")
	for _, p := range config.BlurPresets {
		fmt.Printf("  %-12s %d\n", p.Name, p.Value)
	}
	fmt.Println("Duplicate presets (lower is stricter):")
	for _, p := range config.SimilarityPresets {
		fmt.Printf("  %-12s %d\n", p.Name, p.Value)
	}
}

// consoleObserver prints progress on one line and log entries above it
type consoleObserver struct {
	mu     sync.Mutex
	status string
}

func newConsoleObserver() *consoleObserver {
	return &consoleObserver{}
}

func (c *consoleObserver) Progress(percent int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Printf("\rProgress: %3d%% %-50s", percent, truncate(c.status, 50))
}

func (c *consoleObserver) Status(message string) {
	c.mu.Lock()
	c.status = message
	c.mu.Unlock()
}

func (c *consoleObserver) Log(entry logging.Entry) {
	if entry.Level == logging.LevelInfo {
		return
	}
	fmt.Printf("\r%s\n", entry.String())
}

func (c *consoleObserver) Match(name string, similarity float64) {
	fmt.Printf("\rMatch: %s (%.0f%%)\n", name, similarity*100)
}

func (c *consoleObserver) Finished(types.RunSummary) {}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cleanshot/config"
)

// Commands understood by the CLI
var Commands = []string{"organize", "search", "undo", "history", "serve", "presets"}

// ParseArguments converts command-line arguments into a map of flags and values
func ParseArguments() map[string]string {
	return ParseArgs(os.Args[1:])
}

// ParseArgs converts argv (without the program name) into a map of flags and
// values. The first known command word is stored under "command".
func ParseArgs(argv []string) map[string]string {
	args := make(map[string]string)

	commandIndex := -1
	for i, a := range argv {
		if isCommand(a) {
			args["command"] = a
			commandIndex = i
			break
		}
	}

	for i := 0; i < len(argv); i++ {
		if i == commandIndex {
			continue
		}
		arg := argv[i]

		// --key=value
		if strings.HasPrefix(arg, "--") && strings.Contains(arg, "=") {
			parts := strings.SplitN(arg, "=", 2)
			args[strings.TrimPrefix(parts[0], "--")] = parts[1]
			continue
		}

		// --key value, or a boolean --key
		if strings.HasPrefix(arg, "--") {
			flagName := strings.TrimPrefix(arg, "--")
			if i+1 >= len(argv) || strings.HasPrefix(argv[i+1], "--") || i+1 == commandIndex {
				args[flagName] = "true"
			} else {
				args[flagName] = argv[i+1]
				i++
			}
		}
	}

	return args
}

func isCommand(s string) bool {
	for _, c := range Commands {
		if s == c {
			return true
		}
	}
	return false
}

// Flag reports whether a boolean flag is set. "false", "0" and "no" count as unset.
func Flag(args map[string]string, name string) bool {
	v, ok := args[name]
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "false", "0", "no":
		return false
	}
	return true
}

// defaultPath places name next to the executable
func defaultPath(name string) string {
	exePath, err := os.Executable()
	if err != nil {
		// Fallback to current directory if executable path can't be determined
		return name
	}
	return filepath.Join(filepath.Dir(exePath), name)
}

// GetDefaultDatabasePath returns the default path for the session database
func GetDefaultDatabasePath() string {
	return defaultPath(config.DefaultDatabaseFile)
}

// GetDefaultLedgerPath returns the default path for the undo ledger
func GetDefaultLedgerPath() string {
	return defaultPath(config.DefaultLedgerFile)
}

// GetDefaultConfigPath returns the default path for the YAML settings file
func GetDefaultConfigPath() string {
	return defaultPath("cleanshot.yaml")
}

// PrintUsage outputs the command-line usage instructions
func PrintUsage() {
	fmt.Printf("Usage:\n")
	fmt.Printf("  %s organize --folder=PATH [--blur=N] [--similarity=N] [--preset-blur=NAME] [--preset-similarity=NAME] [--no-faces] [--preview] [--apply] [--export-log=PATH] [--export-summary=PATH]\n", os.Args[0])
	fmt.Printf("  %s search --folder=PATH --reference=PATH [--threshold=VALUE] [--verifier=URL] [--preview]\n", os.Args[0])
	fmt.Printf("  %s undo [--all | --skip]\n", os.Args[0])
	fmt.Printf("  %s history [--limit=N]\n", os.Args[0])
	fmt.Printf("  %s serve [--addr=HOST:PORT]\n", os.Args[0])
	fmt.Printf("  %s presets\n", os.Args[0])
	fmt.Printf("\nParameters:\n")
	fmt.Printf("  --folder         : Folder whose photos are organized or searched (not recursive)\n")
	fmt.Printf("  --reference      : Photo of the person to search for\n")
	fmt.Printf("  --blur           : Blur threshold, 0-%d (default: %d)\n", config.MaxBlurThreshold, config.DefaultBlurThreshold)
	fmt.Printf("  --similarity     : Duplicate threshold, 0-%d (default: %d)\n", config.MaxSimilarityThreshold, config.DefaultSimilarityThreshold)
	fmt.Printf("  --preset-blur    : Soft, Normal, Strict or Very-Strict\n")
	fmt.Printf("  --preset-similarity : Loose, Normal, Strict or Very-Strict\n")
	fmt.Printf("  --no-faces       : Skip face detection and the Face_Photos folder\n")
	fmt.Printf("  --preview        : Decide categories without moving anything\n")
	fmt.Printf("  --apply          : With --preview, move the files after showing the decisions\n")
	fmt.Printf("  --threshold      : Face match threshold (0.0-1.0, default: %.2f)\n", config.DefaultFaceMatchThreshold)
	fmt.Printf("  --verifier       : URL of the face verification service\n")
	fmt.Printf("  --all / --skip   : Undo every operation, or drop the newest entry without moving files\n")
	fmt.Printf("  --config         : YAML settings file (default: %s)\n", GetDefaultConfigPath())
	fmt.Printf("  --database       : Session database (default: %s)\n", GetDefaultDatabasePath())
	fmt.Printf("  --ledger         : Undo ledger file (default: %s)\n", GetDefaultLedgerPath())
	fmt.Printf("  --debug          : Enable debug mode (logs detailed information)\n")
	fmt.Printf("  --logfile        : Specify custom log file path (default: %s)\n", config.DefaultLogFile)
	fmt.Printf("\nExamples:\n")
	fmt.Printf("  %s organize --folder=/path/to/photos --preset-blur=strict --preview\n", os.Args[0])
	fmt.Printf("  %s search --folder=/path/to/photos --reference=/path/to/me.jpg --threshold=0.9\n", os.Args[0])
	fmt.Printf("  %s undo --all\n", os.Args[0])
}

// ParseThreshold parses and validates a face match threshold in [0,1]
func ParseThreshold(thresholdStr string) (float64, error) {
	parsedThreshold, err := strconv.ParseFloat(thresholdStr, 64)
	if err != nil || parsedThreshold < 0 || parsedThreshold > 1 {
		return config.DefaultFaceMatchThreshold, fmt.Errorf("Invalid threshold value '%s', using default (%.2f)",
			thresholdStr, config.DefaultFaceMatchThreshold)
	}
	return parsedThreshold, nil
}

// ParseIntInRange parses an integer setting and checks it lies in [min,max]
func ParseIntInRange(name, value string, min, max int) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value '%s'", name, value)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, n)
	}
	return n, nil
}

package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
	"github.com/secmon-lab/bulkdm/pkg/service/eventlog"
	"github.com/secmon-lab/bulkdm/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	yaml "go.yaml.in/yaml/v3"
)

const (
	DefaultConfigFile = "config.json"
	DefaultRosterFile = "slack_users.csv"
	DefaultLogFile    = eventlog.DefaultFileName

	// EnvPortableDir is set by portable launchers to the directory holding the executable
	EnvPortableDir = "PORTABLE_EXECUTABLE_DIR"

	envSlackBotToken    = "SLACK_BOT_TOKEN"
	envOnlySendToCohort = "ONLY_SEND_TO_WFH_ISP"
	envExceptionUserIDs = "EXCEPTION_USER_IDS"
)

// App locates the application files and loads the operator config.
//
// Every file lives in the app root unless its flag says otherwise. The
// app root is --app-root, else $PORTABLE_EXECUTABLE_DIR, else the working
// directory.
type App struct {
	root       string
	configPath string
	csvPath    string
	logPath    string
}

func (x *App) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "app-root",
			Usage:       "Directory holding config.json, .env, the roster CSV and the event log",
			Category:    "Application",
			Destination: &x.root,
			Sources:     cli.EnvVars("BULKDM_APP_ROOT"),
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Config file (.json, .toml, .yaml). Default: <app-root>/" + DefaultConfigFile,
			Category:    "Application",
			Destination: &x.configPath,
			Sources:     cli.EnvVars("BULKDM_CONFIG"),
		},
		&cli.StringFlag{
			Name:        "csv-path",
			Usage:       "Roster CSV file. Default: <app-root>/" + DefaultRosterFile,
			Category:    "Application",
			Destination: &x.csvPath,
			Sources:     cli.EnvVars("BULKDM_CSV_PATH"),
		},
		&cli.StringFlag{
			Name:        "event-log",
			Usage:       "Operator event log file. Default: <app-root>/" + DefaultLogFile,
			Category:    "Application",
			Destination: &x.logPath,
			Sources:     cli.EnvVars("BULKDM_EVENT_LOG"),
		},
	}
}

func (x App) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("root", x.Root()),
		slog.String("config", x.ConfigPath()),
		slog.String("csv", x.CSVPath()),
		slog.String("event_log", x.LogPath()),
	)
}

// Root returns the app root directory
func (x *App) Root() string {
	if x.root != "" {
		return x.root
	}
	if dir := os.Getenv(EnvPortableDir); dir != "" {
		return dir
	}
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func (x *App) ConfigPath() string {
	return x.inRoot(x.configPath, DefaultConfigFile)
}

func (x *App) CSVPath() string {
	return x.inRoot(x.csvPath, DefaultRosterFile)
}

func (x *App) LogPath() string {
	return x.inRoot(x.logPath, DefaultLogFile)
}

func (x *App) inRoot(path, name string) string {
	if path != "" {
		return path
	}
	return filepath.Join(x.Root(), name)
}

// fileConfig is the on-disk shape of the config file
type fileConfig struct {
	SlackBotToken         string   `json:"slackBotToken" toml:"slackBotToken" yaml:"slackBotToken"`
	SendOnlyToWfhIspUsers bool     `json:"sendOnlyToWfhIspUsers" toml:"sendOnlyToWfhIspUsers" yaml:"sendOnlyToWfhIspUsers"`
	ExceptionUserIDs      []string `json:"exceptionUserIds" toml:"exceptionUserIds" yaml:"exceptionUserIds"`
}

// Load reads the operator config. The config file wins when it can be read
// and carries a token. Otherwise the environment is used, after loading
// <app-root>/.env without overriding variables that are already set.
func (x *App) Load() (*model.AppConfig, error) {
	envFile := filepath.Join(x.Root(), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logging.Default().Warn("failed to load .env", "path", envFile, "error", err.Error())
	}

	path := x.ConfigPath()
	cfg, fileErr := loadConfigFile(path)
	if fileErr == nil {
		return cfg, nil
	}

	cfg = loadConfigEnv()
	if cfg.SlackBotToken == "" {
		return nil, goerr.Wrap(ErrMissingToken,
			"failed to load config file and "+envSlackBotToken+" is not set",
			goerr.V(ConfigPathKey, path),
			goerr.V("file_error", fileErr.Error()))
	}

	logging.Default().Info("config file unavailable, using environment",
		"path", path, "reason", fileErr.Error())
	return cfg, nil
}

func loadConfigFile(path string) (*model.AppConfig, error) {
	// #nosec G304 - path is provided by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	var raw fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, &raw)
	case ".toml":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "config file must be .json, .toml or .yaml",
			goerr.V(ConfigPathKey, path), goerr.V("ext", ext))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse config file", goerr.V(ConfigPathKey, path))
	}

	if raw.SlackBotToken == "" {
		return nil, goerr.Wrap(ErrMissingToken, "slackBotToken missing in config file", goerr.V(ConfigPathKey, path))
	}

	return &model.AppConfig{
		SlackBotToken:    raw.SlackBotToken,
		SendOnlyToCohort: raw.SendOnlyToWfhIspUsers,
		ExceptionUserIDs: toUserIDs(raw.ExceptionUserIDs),
	}, nil
}

func loadConfigEnv() *model.AppConfig {
	return &model.AppConfig{
		SlackBotToken:    os.Getenv(envSlackBotToken),
		SendOnlyToCohort: os.Getenv(envOnlySendToCohort) == "true",
		ExceptionUserIDs: toUserIDs(strings.Split(os.Getenv(envExceptionUserIDs), ",")),
	}
}

func toUserIDs(raw []string) []model.SlackUserID {
	ids := make([]model.SlackUserID, 0, len(raw))
	for _, id := range raw {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, model.SlackUserID(id))
		}
	}
	return ids
}

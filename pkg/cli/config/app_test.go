package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/bulkdm/pkg/cli/config"
	"github.com/secmon-lab/bulkdm/pkg/domain/model"
)

// clearEnv unsets the config variables for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SLACK_BOT_TOKEN",
		"ONLY_SEND_TO_WFH_ISP",
		"EXCEPTION_USER_IDS",
		config.EnvPortableDir,
	} {
		t.Setenv(key, "")
		gt.NoError(t, os.Unsetenv(key)).Required()
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o600)).Required()
}

func TestAppPaths(t *testing.T) {
	clearEnv(t)

	t.Run("explicit root", func(t *testing.T) {
		app := config.NewAppForTest("/opt/bulkdm", "")
		gt.Value(t, app.Root()).Equal("/opt/bulkdm")
		gt.Value(t, app.ConfigPath()).Equal(filepath.Join("/opt/bulkdm", "config.json"))
		gt.Value(t, app.CSVPath()).Equal(filepath.Join("/opt/bulkdm", "slack_users.csv"))
		gt.Value(t, app.LogPath()).Equal(filepath.Join("/opt/bulkdm", "slack_dm_sender.log"))
	})

	t.Run("portable dir when no root", func(t *testing.T) {
		t.Setenv(config.EnvPortableDir, "/portable")
		app := config.NewAppForTest("", "")
		gt.Value(t, app.Root()).Equal("/portable")
	})

	t.Run("working directory otherwise", func(t *testing.T) {
		wd, err := os.Getwd()
		gt.NoError(t, err).Required()
		app := config.NewAppForTest("", "")
		gt.Value(t, app.Root()).Equal(wd)
	})

	t.Run("explicit config path", func(t *testing.T) {
		app := config.NewAppForTest("/opt/bulkdm", "/etc/bulkdm.toml")
		gt.Value(t, app.ConfigPath()).Equal("/etc/bulkdm.toml")
	})
}

func TestAppLoad_ConfigFile(t *testing.T) {
	want := &model.AppConfig{
		SlackBotToken:    "xoxb-file",
		SendOnlyToCohort: true,
		ExceptionUserIDs: []model.SlackUserID{"U1", "U2"},
	}

	testCases := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "config.json",
			content: `{"slackBotToken":"xoxb-file","sendOnlyToWfhIspUsers":true,"exceptionUserIds":["U1"," U2 ",""]}`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `slackBotToken = "xoxb-file"
sendOnlyToWfhIspUsers = true
exceptionUserIds = ["U1", " U2 ", ""]
`,
		},
		{
			name: "yaml",
			file: "config.yaml",
			content: `slackBotToken: xoxb-file
sendOnlyToWfhIspUsers: true
exceptionUserIds:
  - U1
  - " U2 "
  - ""
`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")

			root := t.TempDir()
			path := filepath.Join(root, tc.file)
			writeFile(t, path, tc.content)

			cfg, err := config.NewAppForTest(root, path).Load()
			gt.NoError(t, err).Required()
			gt.Value(t, cfg).Equal(want)
		})
	}
}

func TestAppLoad_EnvFallback(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		t.Setenv("ONLY_SEND_TO_WFH_ISP", "true")
		t.Setenv("EXCEPTION_USER_IDS", "U1, U2,,")

		cfg, err := config.NewAppForTest(t.TempDir(), "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-env")
		gt.Value(t, cfg.SendOnlyToCohort).Equal(true)
		gt.Value(t, cfg.ExceptionUserIDs).Equal([]model.SlackUserID{"U1", "U2"})
	})

	t.Run("only the exact string true enables the cohort filter", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		t.Setenv("ONLY_SEND_TO_WFH_ISP", "1")

		cfg, err := config.NewAppForTest(t.TempDir(), "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SendOnlyToCohort).Equal(false)
		gt.Array(t, cfg.ExceptionUserIDs).Length(0)
	})

	t.Run("file without token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "config.json"), `{"sendOnlyToWfhIspUsers":true}`)

		cfg, err := config.NewAppForTest(root, "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-env")
		// file values are not merged into the env config
		gt.Value(t, cfg.SendOnlyToCohort).Equal(false)
	})

	t.Run("unparsable file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "config.json"), `{`)

		cfg, err := config.NewAppForTest(root, "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-env")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		root := t.TempDir()
		path := filepath.Join(root, "config.ini")
		writeFile(t, path, `slackBotToken=xoxb-file`)

		cfg, err := config.NewAppForTest(root, path).Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-env")
	})

	t.Run("dotenv in app root", func(t *testing.T) {
		clearEnv(t)
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".env"), "SLACK_BOT_TOKEN=xoxb-dotenv\nEXCEPTION_USER_IDS=U9\n")

		cfg, err := config.NewAppForTest(root, "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-dotenv")
		gt.Value(t, cfg.ExceptionUserIDs).Equal([]model.SlackUserID{"U9"})
	})

	t.Run("dotenv does not override the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
		root := t.TempDir()
		writeFile(t, filepath.Join(root, ".env"), "SLACK_BOT_TOKEN=xoxb-dotenv\n")

		cfg, err := config.NewAppForTest(root, "").Load()
		gt.NoError(t, err).Required()
		gt.Value(t, cfg.SlackBotToken).Equal("xoxb-env")
	})
}

func TestAppLoad_NoToken(t *testing.T) {
	clearEnv(t)
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "config.json"), `{"slackBotToken":""}`)

	_, err := config.NewAppForTest(root, "").Load()
	gt.Error(t, err).Is(config.ErrMissingToken)
}

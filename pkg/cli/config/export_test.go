package config

// NewAppForTest creates an App config for testing purposes
func NewAppForTest(root, configPath string) *App {
	return &App{
		root:       root,
		configPath: configPath,
	}
}

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, apiURL string) *Slack {
	return &Slack{
		botToken: botToken,
		apiURL:   apiURL,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}

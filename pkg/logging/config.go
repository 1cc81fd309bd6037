package logging

const (
	BaseDataDir   = "data"
	LogsDir       = "logs"
	LogFileFormat = "2006-01-02.log"
	TimeFormat    = "2006-01-02 15:04:05"
)

type ProcessName string

const (
	CoordinatorProcess ProcessName = "coordinator"
	TestProcess        ProcessName = "test"
)

type LoggerConfig struct {
	// LogDir overrides BaseDataDir as the root of the log tree.
	LogDir        string
	ProcessName   ProcessName
	IsDevelopment bool

	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
}

func NewDefaultConfig(processName ProcessName) LoggerConfig {
	return LoggerConfig{
		LogDir:        BaseDataDir,
		ProcessName:   processName,
		IsDevelopment: true,
		MaxSizeMB:     50,
		MaxAgeDays:    30,
		MaxBackups:    10,
	}
}

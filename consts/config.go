package consts

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
)

// viper 配置项
const (
	ConfigHost                 = "host"
	ConfigPort                 = "port"
	ConfigSetSize              = "setsize"
	ConfigMaxClients           = "maxclients"
	ConfigHz                   = "hz"
	ConfigTimeout              = "timeout"
	ConfigAppendOnly           = "appendonly"
	ConfigAppendFilename       = "appendfilename"
	ConfigAppendFsync          = "appendfsync"
	ConfigMetricsPushAddr      = "metrics.push_addr"
	ConfigMetricsPushInterval  = "metrics.push_interval_ms"
	EnvPrefix                  = "EGGIE_REACTOR"
	AppendFsyncAlways          = "always"
	AppendFsyncEverySec        = "everysec"
	AppendFsyncNo              = "no"
	DefaultSetSize             = 1024
	DefaultMaxClients          = 1000
	DefaultHz                  = 10
	DefaultMetricsPushInterval = 5000
)

func init() {
	home, _ := homedir.Dir()
	BaseDir = fmt.Sprintf("%s/%s", home, AppName)
	DefaultConfigPath = fmt.Sprintf("%s/config", BaseDir)
	DefaultDataPath = fmt.Sprintf("%s/data", BaseDir)
}

var (
	BaseDir           string
	DefaultConfigPath string
	DefaultDataPath   string
)

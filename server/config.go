package server

import (
	"errors"
	"net"
	"path"
	"strings"

	"github.com/Trinoooo/eggie_reactor/consts"
	"github.com/Trinoooo/eggie_reactor/errs"
	"github.com/Trinoooo/eggie_reactor/server/logs"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Host       string
	Port       int
	SetSize    int
	MaxClients int
	Hz         int // serverCron 每秒执行次数
	Timeout    int // 客户端空闲多少秒后断开，0 表示不断开

	AppendOnly     bool
	AppendFilename string
	AppendFsync    string

	MetricsPushAddr     string // 为空时不推送
	MetricsPushInterval int    // 毫秒
}

// NewViper 加载 configPath 下的 config.yaml，文件不存在时只使用默认值和环境变量
func NewViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(consts.ConfigHost, "127.0.0.1")
	v.SetDefault(consts.ConfigPort, 6380)
	v.SetDefault(consts.ConfigSetSize, consts.DefaultSetSize)
	v.SetDefault(consts.ConfigMaxClients, consts.DefaultMaxClients)
	v.SetDefault(consts.ConfigHz, consts.DefaultHz)
	v.SetDefault(consts.ConfigTimeout, 0)
	v.SetDefault(consts.ConfigAppendOnly, false)
	v.SetDefault(consts.ConfigAppendFilename, path.Join(consts.DefaultDataPath, "appendonly.aof"))
	v.SetDefault(consts.ConfigAppendFsync, consts.AppendFsyncEverySec)
	v.SetDefault(consts.ConfigMetricsPushAddr, "")
	v.SetDefault(consts.ConfigMetricsPushInterval, consts.DefaultMetricsPushInterval)

	// EGGIE_REACTOR_PORT 之类的环境变量覆盖配置文件
	v.SetEnvPrefix(consts.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = consts.DefaultConfigPath
	}
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			e := errs.NewReadConfigErr().WithErr(err)
			logs.Error(e.Error(), zap.String(consts.LogFieldParams, configPath))
			return nil, e
		}
		logs.Info("config file not found, use defaults", zap.String(consts.LogFieldParams, configPath))
	}
	return v, nil
}

func LoadConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Host:                v.GetString(consts.ConfigHost),
		Port:                v.GetInt(consts.ConfigPort),
		SetSize:             v.GetInt(consts.ConfigSetSize),
		MaxClients:          v.GetInt(consts.ConfigMaxClients),
		Hz:                  v.GetInt(consts.ConfigHz),
		Timeout:             v.GetInt(consts.ConfigTimeout),
		AppendOnly:          v.GetBool(consts.ConfigAppendOnly),
		AppendFilename:      v.GetString(consts.ConfigAppendFilename),
		AppendFsync:         v.GetString(consts.ConfigAppendFsync),
		MetricsPushAddr:     v.GetString(consts.ConfigMetricsPushAddr),
		MetricsPushInterval: v.GetInt(consts.ConfigMetricsPushInterval),
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig 不读文件和环境变量的默认配置
func DefaultConfig() *Config {
	return &Config{
		Host:                "127.0.0.1",
		Port:                6380,
		SetSize:             consts.DefaultSetSize,
		MaxClients:          consts.DefaultMaxClients,
		Hz:                  consts.DefaultHz,
		AppendFilename:      path.Join(consts.DefaultDataPath, "appendonly.aof"),
		AppendFsync:         consts.AppendFsyncEverySec,
		MetricsPushInterval: consts.DefaultMetricsPushInterval,
	}
}

func (cfg *Config) check() error {
	invalid := func(param string, value any) error {
		e := errs.NewInvalidParamErr()
		logs.Error(e.Error(), zap.String(consts.LogFieldParams, param), zap.Any(consts.LogFieldValue, value))
		return e
	}

	if ip := net.ParseIP(cfg.Host); ip == nil || ip.To4() == nil {
		return invalid(consts.ConfigHost, cfg.Host)
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return invalid(consts.ConfigPort, cfg.Port)
	}
	if cfg.SetSize <= 0 {
		return invalid(consts.ConfigSetSize, cfg.SetSize)
	}
	if cfg.MaxClients <= 0 {
		return invalid(consts.ConfigMaxClients, cfg.MaxClients)
	}
	if cfg.Hz < 1 || cfg.Hz > 500 {
		return invalid(consts.ConfigHz, cfg.Hz)
	}
	if cfg.Timeout < 0 {
		return invalid(consts.ConfigTimeout, cfg.Timeout)
	}
	switch cfg.AppendFsync {
	case consts.AppendFsyncAlways, consts.AppendFsyncEverySec, consts.AppendFsyncNo:
	default:
		return invalid(consts.ConfigAppendFsync, cfg.AppendFsync)
	}
	if cfg.AppendOnly && cfg.AppendFilename == "" {
		return invalid(consts.ConfigAppendFilename, cfg.AppendFilename)
	}
	if cfg.MetricsPushAddr != "" && cfg.MetricsPushInterval <= 0 {
		return invalid(consts.ConfigMetricsPushInterval, cfg.MetricsPushInterval)
	}
	return nil
}

func (cfg *Config) hostAddr() [4]byte {
	var addr [4]byte
	copy(addr[:], net.ParseIP(cfg.Host).To4())
	return addr
}

package consts

const (
	B = 1 << (iota * 10)
	KB
	MB
	GB
)

const HelpTemplate = `NAME:
   {{.Name}} - {{.Usage}}
USAGE:
   {{.HelpName}} {{if .VisibleFlags}}[global options]{{end}}{{if .Commands}} command [command options]{{end}} {{if .ArgsUsage}}{{.ArgsUsage}}{{else}}[arguments...]{{end}}
   {{if len .Authors}}
AUTHOR:
   {{range .Authors}}{{ . }}{{end}}
   {{end}}{{if .Commands}}
COMMANDS:
{{range .Commands}}{{if not .HideHelp}}   {{join .Names ", "}}{{ "\t"}}{{.Usage}}{{ "\n" }}{{end}}{{end}}{{end}}{{if .VisibleFlags}}
GLOBAL OPTIONS:
   {{range .VisibleFlags}}{{.}}
   {{end}}{{end}}{{if .Copyright }}
COPYRIGHT:
   {{.Copyright}}
   {{end}}{{if .Version}}
VERSION:
   {{.Version}}
   {{end}}
`

const (
	AppName    = "eggie_reactor"
	AppVersion = "0.1.0.261016_alpha"
)

// 日志公共字段
const (
	LogFieldComponent = "component"
	LogFieldParams    = "params"
	LogFieldValue     = "value"
	LogFieldFd        = "fd"
	LogFieldMask      = "mask"
	LogFieldTimerId   = "timer_id"
	LogFieldSetSize   = "setsize"
	LogFieldApi       = "api"
	LogFieldAddr      = "addr"
	LogFieldCmd       = "cmd"
)

package config

import "flag"

var (
	flagVar *Flags
)

func init() {
	flagVar = &Flags{}
}

func GetFlag() *Flags {
	return flagVar
}

type Flags struct {
	ConfigPath string
	Cmd        string
	RdbCmd     RdbCmdFlags
}

type RdbCmdFlags struct {
	RdbAction string
	RdbPath   string
}

func LoadFlags() error {
	flag.StringVar(&flagVar.Cmd, "cmd", "migrate", "command name : migrate/rdb")
	flag.StringVar(&flagVar.ConfigPath, "conf", "", "config file path")

	flag.StringVar(&flagVar.RdbCmd.RdbPath, "rdb.path", "", "rdb file path")
	flag.StringVar(&flagVar.RdbCmd.RdbAction, "rdb.action", "print", "print")

	flag.Parse()
	return nil
}

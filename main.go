package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/mgtv-tech/redis-ferry/cmd"
	"github.com/mgtv-tech/redis-ferry/config"
	"github.com/mgtv-tech/redis-ferry/pkg/log"
	usync "github.com/mgtv-tech/redis-ferry/pkg/sync"
)

func main() {
	maxprocs.Set()
	panicIfError(config.LoadFlags())
	panicIfError(runCmd())
}

func runCmd() error {
	var cmder cmd.Cmd
	switch config.GetFlag().Cmd {
	case "migrate":
		panicIfError(config.InitConfig(config.GetFlag().ConfigPath))
		panicIfError(log.Init(*config.Get().Log))
		cmder = cmd.NewMigrateCmd()
	case "rdb":
		cmder = cmd.NewRdbCmd()
	default:
		panicIfError(fmt.Errorf("does not support command(%s)", config.GetFlag().Cmd))
	}

	usync.SafeGo(func() {
		handleSignal(cmder)
	}, nil)

	err := cmder.Run()
	log.Sync()
	if err != nil {
		// a fatal class fired : non-zero status
		log.Errorf("%s : %v", cmder.Name(), err)
		os.Exit(1)
	}
	return nil
}

func handleSignal(c cmd.Cmd) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGPIPE, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	for {
		sig := <-signals
		log.Infof("received signal: %s", sig)
		switch sig {
		case syscall.SIGPIPE:
		default:
			usync.SafeGo(func() {
				grace := config.Get().Server.GracefulStopTimeout.Duration()
				if grace <= 0 {
					grace = 5 * time.Second
				}
				time.Sleep(grace)
				log.Errorf("graceful stop timed out")
				os.Exit(2)
			}, nil)
			c.Stop()
		}
	}
}

func panicIfError(err error) {
	if err != nil {
		log.Panicf("%v", err)
	}
}

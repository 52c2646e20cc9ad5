package cmd

import (
	"context"
	"fmt"

	"github.com/mgtv-tech/redis-ferry/config"
	"github.com/mgtv-tech/redis-ferry/migrate"
	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// RdbCmd inspects an RDB file offline.
type RdbCmd struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewRdbCmd() *RdbCmd {
	ctx, cancel := context.WithCancel(context.Background())
	return &RdbCmd{
		ctx:    ctx,
		cancel: cancel,
	}
}

func (rc *RdbCmd) Name() string {
	return "ferry.rdb"
}

func (rc *RdbCmd) Stop() error {
	rc.cancel()
	return nil
}

func (rc *RdbCmd) Run() error {
	action := config.GetFlag().RdbCmd.RdbAction
	switch action {
	case "print":
		return rc.print()
	}
	return errors.Errorf("%w : unknown rdb action %q", errors.ErrConfig, action)
}

// print dumps the snapshot as the write commands the engine would replay.
func (rc *RdbCmd) print() error {
	src := migrate.NewRdbFileSource(config.GetFlag().RdbCmd.RdbPath)
	return migrate.EachEvent(rc.ctx, src, func(ev *migrate.Event) error {
		if ev.Kind != migrate.EventCommand {
			return nil
		}
		line := make([]byte, 0, 64)
		for i, arg := range ev.Argv {
			if i > 0 {
				line = append(line, ' ')
			}
			line = append(line, arg...)
		}
		fmt.Printf("db(%d) %s\n", ev.Db, util.BytesToString(line))
		return nil
	})
}

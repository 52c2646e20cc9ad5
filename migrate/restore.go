package migrate

import (
	"strconv"
	"strings"

	"github.com/mgtv-tech/redis-ferry/pkg/redis/endpoint"
	"github.com/mgtv-tech/redis-ferry/pkg/redis/proto"
)

// ReplaceMode decides what happens when a key already exists on the target.
type ReplaceMode int

const (
	// ReplaceNone restores without REPLACE; an existing key surfaces as a
	// BUSYKEY reply counted under ENDPOINT_FAILURE.
	ReplaceNone ReplaceMode = iota
	// ReplaceForce appends REPLACE to every RESTORE.
	ReplaceForce
	// ReplaceFallback restores without REPLACE first and falls back to
	// DEL + RESTORE REPLACE when the server reports the key busy. Runs the
	// command synchronously, since the fallback needs the individual reply.
	ReplaceFallback
)

func ParseReplaceMode(s string) (ReplaceMode, bool) {
	switch strings.ToLower(s) {
	case "", "no", "false":
		return ReplaceNone, true
	case "yes", "true":
		return ReplaceForce, true
	case "fallback":
		return ReplaceFallback, true
	}
	return ReplaceNone, false
}

// legacyRestoreScript performs DEL + RESTORE atomically, for targets that
// predate RESTORE ... REPLACE.
const legacyRestoreScript = "redis.call('DEL', KEYS[1]) return redis.call('RESTORE', KEYS[1], ARGV[1], ARGV[2])"

// streamBulkMin is the payload size from which RESTORE streams the dump
// bytes through the writer instead of copying them through the argv path.
const streamBulkMin = proto.WriterBufferSize

// restoreArgv builds the replay command for a key/value event.
func restoreArgv(e *Event, replace bool, legacy bool) (string, [][]byte) {
	ttl := []byte(strconv.FormatInt(e.TtlMs, 10))
	if legacy {
		return "EVAL", [][]byte{[]byte(legacyRestoreScript), []byte("1"), e.Key, ttl, e.Payload}
	}
	args := [][]byte{e.Key, ttl, e.Payload}
	if replace {
		args = append(args, []byte("REPLACE"))
	}
	return "RESTORE", args
}

// restoreStreamArgv splits the RESTORE argv around its payload, which the
// endpoint streams separately.
func restoreStreamArgv(e *Event, replace bool) (pre [][]byte, post [][]byte) {
	pre = [][]byte{e.Key, []byte(strconv.FormatInt(e.TtlMs, 10))}
	if replace {
		post = [][]byte{[]byte("REPLACE")}
	}
	return pre, post
}

// isBusyKey recognizes the existing-key reply across server generations :
// 2.8 says "Target key name is busy", 4.0+ says "BUSYKEY ...".
func isBusyKey(reply *proto.Reply) bool {
	if !reply.IsError() {
		return false
	}
	return strings.Contains(reply.Str, "BUSYKEY") ||
		strings.Contains(reply.Str, "Target key name is busy")
}

// sendRestoreFallback runs the slow path : synchronous RESTORE, and on a
// busy key a DEL followed by RESTORE REPLACE.
func sendRestoreFallback(ep *endpoint.Endpoint, e *Event) (*proto.Reply, error) {
	cmd, args := restoreArgv(e, false, false)
	reply, err := ep.Send(cmd, args...)
	if err != nil {
		return nil, err
	}
	if !isBusyKey(reply) {
		return reply, nil
	}
	if _, err := ep.Send("DEL", e.Key); err != nil {
		return nil, err
	}
	cmd, args = restoreArgv(e, true, false)
	return ep.Send(cmd, args...)
}

package cluster

import (
	"strconv"
	"strings"

	"github.com/mgtv-tech/redis-ferry/pkg/errors"
	"github.com/mgtv-tech/redis-ferry/pkg/util"
)

// keySpec locates the key arguments of a command : first and last key
// positions (1-based, negative last counts from the end) and the step
// between keys.
type keySpec struct {
	first int
	last  int
	step  int
}

var commandKeys = map[string]keySpec{
	// generic
	"del": {1, -1, 1}, "unlink": {1, -1, 1}, "exists": {1, -1, 1},
	"expire": {1, 1, 1}, "pexpire": {1, 1, 1}, "expireat": {1, 1, 1}, "pexpireat": {1, 1, 1},
	"ttl": {1, 1, 1}, "pttl": {1, 1, 1}, "persist": {1, 1, 1}, "type": {1, 1, 1},
	"dump": {1, 1, 1}, "restore": {1, 1, 1}, "sort": {1, 1, 1}, "touch": {1, -1, 1},
	"rename": {1, 2, 1}, "renamenx": {1, 2, 1}, "copy": {1, 2, 1},
	// string
	"get": {1, 1, 1}, "set": {1, 1, 1}, "setnx": {1, 1, 1}, "setex": {1, 1, 1}, "psetex": {1, 1, 1},
	"getset": {1, 1, 1}, "getdel": {1, 1, 1}, "getex": {1, 1, 1},
	"append": {1, 1, 1}, "strlen": {1, 1, 1}, "setrange": {1, 1, 1}, "getrange": {1, 1, 1},
	"incr": {1, 1, 1}, "decr": {1, 1, 1}, "incrby": {1, 1, 1}, "decrby": {1, 1, 1}, "incrbyfloat": {1, 1, 1},
	"setbit": {1, 1, 1}, "getbit": {1, 1, 1}, "bitcount": {1, 1, 1}, "bitpos": {1, 1, 1},
	"mget": {1, -1, 1}, "mset": {1, -1, 2}, "msetnx": {1, -1, 2},
	// list
	"lpush": {1, 1, 1}, "rpush": {1, 1, 1}, "lpushx": {1, 1, 1}, "rpushx": {1, 1, 1},
	"lpop": {1, 1, 1}, "rpop": {1, 1, 1}, "llen": {1, 1, 1}, "lrange": {1, 1, 1},
	"ltrim": {1, 1, 1}, "lindex": {1, 1, 1}, "lset": {1, 1, 1}, "linsert": {1, 1, 1}, "lrem": {1, 1, 1},
	"rpoplpush": {1, 2, 1}, "lmove": {1, 2, 1},
	// set
	"sadd": {1, 1, 1}, "srem": {1, 1, 1}, "smembers": {1, 1, 1}, "scard": {1, 1, 1},
	"sismember": {1, 1, 1}, "smismember": {1, 1, 1}, "spop": {1, 1, 1}, "srandmember": {1, 1, 1},
	"smove": {1, 2, 1}, "sinter": {1, -1, 1}, "sunion": {1, -1, 1}, "sdiff": {1, -1, 1},
	"sinterstore": {1, -1, 1}, "sunionstore": {1, -1, 1}, "sdiffstore": {1, -1, 1},
	// hash
	"hset": {1, 1, 1}, "hsetnx": {1, 1, 1}, "hmset": {1, 1, 1}, "hget": {1, 1, 1}, "hmget": {1, 1, 1},
	"hdel": {1, 1, 1}, "hlen": {1, 1, 1}, "hgetall": {1, 1, 1}, "hkeys": {1, 1, 1}, "hvals": {1, 1, 1},
	"hexists": {1, 1, 1}, "hincrby": {1, 1, 1}, "hincrbyfloat": {1, 1, 1}, "hrandfield": {1, 1, 1},
	// zset
	"zadd": {1, 1, 1}, "zrem": {1, 1, 1}, "zscore": {1, 1, 1}, "zmscore": {1, 1, 1},
	"zcard": {1, 1, 1}, "zcount": {1, 1, 1}, "zincrby": {1, 1, 1}, "zrank": {1, 1, 1}, "zrevrank": {1, 1, 1},
	"zrange": {1, 1, 1}, "zrevrange": {1, 1, 1}, "zrangebyscore": {1, 1, 1}, "zrevrangebyscore": {1, 1, 1},
	"zrangebylex": {1, 1, 1}, "zremrangebyrank": {1, 1, 1}, "zremrangebyscore": {1, 1, 1}, "zremrangebylex": {1, 1, 1},
	"zpopmin": {1, 1, 1}, "zpopmax": {1, 1, 1},
	// hyperloglog
	"pfadd": {1, 1, 1}, "pfcount": {1, -1, 1}, "pfmerge": {1, -1, 1},
	// stream
	"xadd": {1, 1, 1}, "xlen": {1, 1, 1}, "xrange": {1, 1, 1}, "xrevrange": {1, 1, 1},
	"xdel": {1, 1, 1}, "xtrim": {1, 1, 1}, "xsetid": {1, 1, 1},
	// bit
	"bitfield": {1, 1, 1},
}

// CommandKeys extracts the key arguments of argv (argv[0] is the command
// name). Commands that carry no key return nil; EVAL/EVALSHA keys follow the
// numkeys argument.
func CommandKeys(argv [][]byte) ([][]byte, error) {
	if len(argv) == 0 {
		return nil, errors.Errorf("empty argv")
	}
	name := strings.ToLower(util.BytesToString(argv[0]))

	if name == "eval" || name == "evalsha" {
		if len(argv) < 3 {
			return nil, errors.Errorf("short %s command", name)
		}
		numkeys, err := strconv.Atoi(util.BytesToString(argv[2]))
		if err != nil || numkeys < 0 || 3+numkeys > len(argv) {
			return nil, errors.Errorf("bad numkeys in %s command", name)
		}
		return argv[3 : 3+numkeys], nil
	}

	spec, ok := commandKeys[name]
	if !ok {
		return nil, nil
	}
	last := spec.last
	if last < 0 {
		last = len(argv) + last
	}
	if spec.first >= len(argv) || last >= len(argv) {
		return nil, errors.Errorf("short %s command", name)
	}
	var keys [][]byte
	for i := spec.first; i <= last; i += spec.step {
		keys = append(keys, argv[i])
	}
	return keys, nil
}

// SameSlot reports the single slot all keys of argv hash to. ok is false for
// a keyless command; a cross-slot spread returns an error.
func SameSlot(argv [][]byte) (slot uint16, ok bool, err error) {
	keys, err := CommandKeys(argv)
	if err != nil {
		return 0, false, err
	}
	if len(keys) == 0 {
		return 0, false, nil
	}
	slot = Slot(keys[0])
	for _, k := range keys[1:] {
		if s := Slot(k); s != slot {
			return 0, false, errors.Errorf("cross-slot command %s : slot %d != %d",
				strings.ToLower(util.BytesToString(argv[0])), slot, s)
		}
	}
	return slot, true, nil
}

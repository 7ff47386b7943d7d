package zookeeper

import (
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const lockRoot = "/atelier/locks"

// Connect dials the ZooKeeper ensemble. addrs is "host1:port1,host2:port2".
func Connect(addrs string) (*zk.Conn, error) {
	conn, _, err := zk.Connect(strings.Split(addrs, ","), 10*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "connect zookeeper")
	}
	return conn, nil
}

// DistributedLock is an ephemeral-sequential-node lock. The reservation
// sweeper takes it per run so only one replica sweeps at a time; everything
// else coordinates through the database, not through this lock.
type DistributedLock struct {
	conn     *zk.Conn
	path     string
	lockNode string
}

// NewDistributedLock prepares the lock path for a named resource, creating
// parents as needed.
func NewDistributedLock(conn *zk.Conn, resourceID string) (*DistributedLock, error) {
	path := ""
	for _, part := range strings.Split(strings.Trim(lockRoot+"/"+resourceID, "/"), "/") {
		path += "/" + part
		_, err := conn.Create(path, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return nil, errors.Wrapf(err, "create lock path %s", path)
		}
	}
	return &DistributedLock{conn: conn, path: path}, nil
}

// TryLock attempts to acquire the lock without waiting behind other holders.
// It returns false when another node already holds it.
func (l *DistributedLock) TryLock() (bool, error) {
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", nil, zk.WorldACL(zk.PermAll))
	if err != nil {
		return false, errors.Wrap(err, "create sequential node")
	}

	children, _, err := l.conn.Children(l.path)
	if err != nil {
		l.conn.Delete(nodePath, -1)
		return false, errors.Wrap(err, "list lock children")
	}
	sort.Strings(children)

	mine := nodePath[strings.LastIndex(nodePath, "/")+1:]
	if len(children) > 0 && children[0] == mine {
		l.lockNode = nodePath
		return true, nil
	}

	// lost the race; clean up our candidate node
	if err := l.conn.Delete(nodePath, -1); err != nil && err != zk.ErrNoNode {
		return false, errors.Wrap(err, "delete candidate node")
	}
	return false, nil
}

// Unlock releases the lock. Safe to call when the lock was not acquired.
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return nil
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && err != zk.ErrNoNode {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

// Package remote provides a net/rpc wrapper around the core DB.
package remote

import (
	"net"
	"net/rpc"

	"caskdb/core"

	"go.uber.org/zap"
)

// DBRemote exposes core.DB's operations as net/rpc methods.
type DBRemote struct {
	db     *core.DB
	logger *zap.Logger
}

type GetArgs struct {
	Key []byte
}

type GetReply struct {
	Value []byte
}

type PutArgs struct {
	Key   []byte
	Value []byte
}

type DeleteArgs struct {
	Key []byte
}

type ListKeysReply struct {
	Keys [][]byte
}

func (r *DBRemote) Get(args *GetArgs, reply *GetReply) error {
	val, err := r.db.Get(args.Key)
	if err != nil {
		return err
	}
	reply.Value = val
	return nil
}

func (r *DBRemote) Put(args *PutArgs, _ *struct{}) error {
	return r.db.Put(args.Key, args.Value)
}

func (r *DBRemote) Delete(args *DeleteArgs, _ *struct{}) error {
	return r.db.Delete(args.Key)
}

func (r *DBRemote) ListKeys(_ *struct{}, reply *ListKeysReply) error {
	reply.Keys = r.db.ListKeys()
	return nil
}

func (r *DBRemote) Merge(_ *struct{}, _ *struct{}) error {
	return r.db.Merge()
}

func (r *DBRemote) Sync(_ *struct{}, _ *struct{}) error {
	return r.db.Sync()
}

// StartRPC registers db under the "DB" name and serves it on addr. It
// returns the bound address and a cleanup func that stops accepting
// connections and closes db.
func StartRPC(db *core.DB, addr string, logger *zap.Logger) (string, func(), error) {
	remote := &DBRemote{db: db, logger: logger}

	server := rpc.NewServer()
	if err := server.RegisterName("DB", remote); err != nil {
		_ = db.Close()
		return "", nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		_ = db.Close()
		return "", nil, err
	}

	go server.Accept(listener)

	cleanup := func() {
		_ = listener.Close()
		if err := db.Close(); err != nil {
			logger.Error("db close", zap.Error(err))
		}
	}
	return listener.Addr().String(), cleanup, nil
}

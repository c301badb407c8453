package server

import (
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/lni/dragonboat/v4/logger"

	"github.com/tkv-io/tKV/lib/clock"
	"github.com/tkv-io/tKV/lib/db/engines/birch"
	"github.com/tkv-io/tKV/lib/repl"
	"github.com/tkv-io/tKV/lib/storage"
	"github.com/tkv-io/tKV/rpc/common"
	"github.com/tkv-io/tKV/rpc/serializer"
	"github.com/tkv-io/tKV/rpc/transport"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer

	store   *storage.Store
	applier *repl.Applier
	reaper  *repl.DropPendingReaper
}

func (s *rpcServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(req []byte) []byte {
		var msg common.Message
		var respMsg *common.Message

		// Decode the request
		if err := s.serializer.Deserialize(req, &msg); err != nil {
			respMsg = common.NewErrorResponse(
				fmt.Sprintf("failed to deserialize request: %s", err),
			)
		} else {
			// Dispatch the request to the storage layer
			respMsg = s.handle(&msg)
		}

		// Return result
		val, err := s.serializer.Serialize(*respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %v", err)
			return nil
		}
		return val
	})
}

func (s *rpcServer) init() error {

	// Init logger
	common.InitLoggers(s.config)

	// Create the versioned storage stack: record engine, logical clock
	// and the catalog-aware store on top
	engine := birch.NewBirchDB(&birch.DBOptions{NumShards: s.config.NumShards})
	s.store = storage.New(engine, clock.NewLogicalClock())

	// The applier records every transaction it commits in the local oplog
	s.applier = repl.NewApplier(s.store)
	s.applier.SetObserver(repl.NewOplogWriter(s.applier))

	// Two-phase collection drops are finalized by the reaper once the
	// retention floor passes their drop point
	s.reaper = repl.NewDropPendingReaper(s.store)
	s.store.SetDropPendingRegistry(s.reaper)

	Logger.Infof("tKV setup completed successfully")

	// Configure the transport layer
	s.registerTransportHandler()

	return nil
}

// reapLoop periodically finalizes drop-pending collections whose drop point
// has fallen below the history retention floor.
func (s *rpcServer) reapLoop() {
	interval := time.Duration(s.config.TimeoutSecond) * time.Second
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		floor := s.store.Engine().OldestTimestamp()
		if floor == clock.TimestampNull {
			continue
		}
		if err := s.reaper.DropCollectionsOlderThan(clock.OpTime{Ts: floor, Term: s.config.Term}); err != nil {
			Logger.Errorf("failed to reap drop-pending collections: %v", err)
		}
	}
}

// Serve starts the RPC server
// This function will also initialize the storage stack and start the
// transport layer
func (s *rpcServer) Serve() error {
	err := s.init()
	if err != nil {
		return err
	}
	go s.reapLoop()
	return s.transport.Listen(s.config)
}

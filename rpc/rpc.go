package rpc

import (
	"context"
	"net"
	"net/rpc"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/room"
	"github.com/wfunc/puzzleserver/services"
	"github.com/wfunc/puzzleserver/session"
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
}

// NewServer creates a new RPC server.
func NewServer(addr string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
	}, nil
}

// Start begins listening for RPC requests.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if _, ok := err.(*net.OpError); ok {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go rpc.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// AdminService exposes the operator surface over net/rpc. Rooms never expire
// on their own, so DestroyRoom here is the only removal path.
type AdminService struct {
	tables   *services.TableService
	rooms    *room.Manager
	sessions *session.Manager
}

func NewAdminService(tables *services.TableService, rooms *room.Manager,
	sessions *session.Manager) *AdminService {
	return &AdminService{tables: tables, rooms: rooms, sessions: sessions}
}

type StatsArgs struct{}

type StatsReply struct {
	Sessions int
	Rooms    int
	Tables   int
	Seated   int
}

// Stats reports the live counters of this process.
func (a *AdminService) Stats(args *StatsArgs, reply *StatsReply) error {
	reply.Sessions = a.sessions.Count()
	for _, r := range a.rooms.Rooms() {
		reply.Rooms++
		for _, t := range r.Tables() {
			reply.Tables++
			reply.Seated += t.OccupiedCount()
		}
	}
	return nil
}

type RoomStateArgs struct {
	RoomID string
}

type RoomStateReply struct {
	State models.RoomState
}

// RoomState dumps the mirror state of one room.
func (a *AdminService) RoomState(args *RoomStateArgs, reply *RoomStateReply) error {
	r, ok := a.rooms.Get(args.RoomID)
	if !ok {
		return errs.E(errs.CodeNotFound, "room %s not found", args.RoomID)
	}
	reply.State = r.State()
	return nil
}

type DestroyRoomArgs struct {
	RoomID string
}

type DestroyRoomReply struct {
	Removed bool
}

// DestroyRoom removes a room administratively, fanning the removal out to
// every process.
func (a *AdminService) DestroyRoom(args *DestroyRoomArgs, reply *DestroyRoomReply) error {
	if err := a.tables.DestroyRoom(context.Background(), args.RoomID); err != nil {
		return err
	}
	reply.Removed = true
	return nil
}

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/rpc"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/puzzleserver/errs"
	"github.com/wfunc/puzzleserver/logger"
	"github.com/wfunc/puzzleserver/models"
	"github.com/wfunc/puzzleserver/monitor"
	"github.com/wfunc/puzzleserver/network"
	"github.com/wfunc/puzzleserver/room"
	puzzle_rpc "github.com/wfunc/puzzleserver/rpc"
	"github.com/wfunc/puzzleserver/services"
	"github.com/wfunc/puzzleserver/session"
)

// GameServer accepts websocket connections, decodes the binary-framed JSON
// protocol and routes player actions to the table service. Dropped
// connections are parked for the reconnect window instead of being torn down.
type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	roomManager    *room.Manager
	sessionManager *session.Manager
	tableService   *services.TableService
	rpcServer      *puzzle_rpc.Server
	monitor        *monitor.Monitor
	httpServer     *http.Server
	shutdownChan   chan struct{}
}

func NewGameServer(addr, rpcAddr string, rooms *room.Manager, sessions *session.Manager,
	tables *services.TableService, mon *monitor.Monitor) *GameServer {
	s := &GameServer{
		addr:           addr,
		roomManager:    rooms,
		sessionManager: sessions,
		tableService:   tables,
		monitor:        mon,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}

	// 断线恢复窗口到期后按完整离房处理
	sessions.OnExpire(s.onSessionExpired)

	// 初始化RPC服务器
	rpcServer, err := puzzle_rpc.NewServer(rpcAddr)
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}
	s.rpcServer = rpcServer

	adminService := puzzle_rpc.NewAdminService(tables, rooms, sessions)
	rpc.Register(adminService)

	return s
}

func (s *GameServer) Start() error {
	go s.rpcServer.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	logger.Log.Infof("Game server listening on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

func (s *GameServer) Shutdown() {
	close(s.shutdownChan)
	s.rpcServer.Stop()
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(ctx)
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(conn)
}

// handleConnection drives one websocket. The first packet may be a resume
// request re-binding a parked session; any other packet starts a fresh
// session.
func (s *GameServer) handleConnection(conn *websocket.Conn) {
	wsConn := network.NewWSConnection(conn)

	packet, err := wsConn.ReadPacket()
	if err != nil {
		wsConn.Close()
		return
	}

	var sess *session.Session
	if packet.MsgID == network.MsgTypeResume {
		sess = s.handleResume(wsConn, packet)
		if sess == nil {
			wsConn.Close()
			return
		}
	} else {
		player := s.sessionManager.Player(uuid.New().String(), "")
		sess = session.NewSession(uuid.New().String(), player, wsConn)
		sess.Subscribe(models.ChannelUser(player.ID))
		s.sessionManager.Add(sess)
		s.handlePacket(sess, packet)
	}

	if s.monitor != nil {
		s.monitor.IncOnlinePlayers()
	}
	logger.Log.Infof("Connection from %s, session %s, player %s",
		wsConn.RemoteAddr(), sess.ID, sess.Player().ID)

	defer func() {
		logger.Log.Infof("Connection dropped, session %s parked", sess.ID)
		if s.monitor != nil {
			s.monitor.DecOnlinePlayers()
		}
		wsConn.Close()
		s.sessionManager.ParkSession(sess.ID)
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

type resumeReq struct {
	SessionID string `json:"session_id"`
}

func (s *GameServer) handleResume(conn network.Connection, packet *network.Packet) *session.Session {
	var req resumeReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return nil
	}
	sess, ok := s.sessionManager.ResumeSession(req.SessionID, conn)
	if !ok {
		data, _ := json.Marshal(map[string]string{
			"code":    string(errs.CodeNotFound),
			"message": "session expired, reconnect window closed",
		})
		conn.Send(network.MsgTypeError, data)
		return nil
	}

	s.sendAck(sess, packet.MsgID, map[string]string{"session_id": sess.ID})
	// 恢复后把所在房间的镜像状态推给客户端
	if roomID := sess.RoomID(); roomID != "" {
		if r, exists := s.roomManager.Get(roomID); exists {
			s.sendRoomState(sess, r)
		}
	}
	return sess
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	defer func() {
		if s.monitor != nil {
			s.monitor.ObserveActionLatency(time.Since(start))
		}
	}()

	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		sess.Player().Touch()
		return
	case network.MsgTypeJoinRoom:
		err = s.handleJoinRoom(sess, packet)
	case network.MsgTypeLeaveRoom:
		err = s.handleLeaveRoom(sess, packet)
	case network.MsgTypeCreateTable:
		err = s.handleCreateTable(sess, packet)
	case network.MsgTypeSit:
		err = s.handleSit(sess, packet)
	case network.MsgTypeStand:
		err = s.handleStand(sess, packet)
	case network.MsgTypePlayNow:
		err = s.handlePlayNow(sess, packet)
	case network.MsgTypeBoot:
		err = s.handleBoot(sess, packet)
	case network.MsgTypeTableAccess:
		err = s.handleTableAccess(sess, packet)
	case network.MsgTypeWatchTable:
		err = s.handleWatchTable(sess, packet)
	case network.MsgTypeSetReady:
		err = s.handleSetReady(sess, packet)
	case network.MsgTypeInvite:
		err = s.handleInvite(sess, packet)
	case network.MsgTypeAcceptInvite:
		err = s.handleAcceptInvite(sess, packet)
	case network.MsgTypeDeclineInvite:
		err = s.handleDeclineInvite(sess, packet)
	case network.MsgTypeChat:
		err = s.handleChat(sess, packet)
	default:
		logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		return
	}

	if err != nil {
		s.sendError(sess, packet.MsgID, err)
	}
}

// sendError surfaces the error taxonomy to the client; unclassified errors
// are masked as internal.
func (s *GameServer) sendError(sess *session.Session, msgID uint16, err error) {
	code := errs.CodeOf(err)
	message := err.Error()
	if code == "" {
		logger.Log.Errorf("internal error on msg %d for %s: %v", msgID, sess.Player().ID, err)
		code = errs.CodeConflict
		message = "internal error"
	}
	data, _ := json.Marshal(map[string]interface{}{
		"request": msgID,
		"code":    string(code),
		"message": message,
	})
	sess.Send(network.MsgTypeError, data)
}

func (s *GameServer) sendAck(sess *session.Session, msgID uint16, fields map[string]string) {
	payload := map[string]interface{}{"request": msgID}
	for k, v := range fields {
		payload[k] = v
	}
	data, _ := json.Marshal(payload)
	sess.Send(network.MsgTypeAck, data)
}

func (s *GameServer) sendRoomState(sess *session.Session, r *room.Room) {
	data, err := json.Marshal(r.State())
	if err != nil {
		return
	}
	sess.Send(network.MsgTypeRoomState, data)
}

type joinRoomReq struct {
	RoomID   string `json:"room_id"`
	RoomName string `json:"room_name"`
	Tier     string `json:"tier"`
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

func (s *GameServer) handleJoinRoom(sess *session.Session, packet *network.Packet) error {
	var req joinRoomReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad join payload")
	}
	if req.RoomID == "" || req.PlayerID == "" {
		return errs.E(errs.CodeValidation, "room_id and player_id are required")
	}

	// 首个带身份的请求把会话绑定到真实玩家
	if sess.Player().ID != req.PlayerID {
		sess.Unsubscribe(models.ChannelUser(sess.Player().ID))
		sess.BindPlayer(s.sessionManager.Player(req.PlayerID, req.Name))
		sess.Subscribe(models.ChannelUser(req.PlayerID))
	}

	if err := s.tableService.JoinRoom(context.Background(), req.RoomID, req.RoomName,
		req.Tier, req.PlayerID); err != nil {
		return err
	}

	sess.SetRoom(req.RoomID)
	sess.Subscribe(models.ChannelRoom(req.RoomID))
	s.sendAck(sess, packet.MsgID, map[string]string{"room_id": req.RoomID, "session_id": sess.ID})
	if r, exists := s.roomManager.Get(req.RoomID); exists {
		s.sendRoomState(sess, r)
	}
	return nil
}

type leaveRoomReq struct {
	RoomID string `json:"room_id"`
}

func (s *GameServer) handleLeaveRoom(sess *session.Session, packet *network.Packet) error {
	var req leaveRoomReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad leave payload")
	}
	if err := s.tableService.LeaveRoom(context.Background(), req.RoomID, sess.Player().ID); err != nil {
		return err
	}

	sess.Unsubscribe(models.ChannelRoom(req.RoomID))
	if r, exists := s.roomManager.Get(req.RoomID); exists {
		for _, t := range r.Tables() {
			sess.Unsubscribe(models.ChannelTable(t.ID))
		}
	}
	sess.SetRoom("")
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type createTableReq struct {
	RoomID     string            `json:"room_id"`
	AccessMode models.AccessMode `json:"access_mode"`
	Rated      bool              `json:"rated"`
}

func (s *GameServer) handleCreateTable(sess *session.Session, packet *network.Packet) error {
	var req createTableReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad create payload")
	}
	if req.AccessMode == "" {
		req.AccessMode = models.AccessPublic
	}
	tableID, err := s.tableService.CreateTable(context.Background(), req.RoomID,
		sess.Player().ID, req.AccessMode, req.Rated)
	if err != nil {
		return err
	}
	sess.Subscribe(models.ChannelTable(tableID))
	s.sendAck(sess, packet.MsgID, map[string]string{"table_id": tableID})
	return nil
}

type sitReq struct {
	TableID string `json:"table_id"`
	Seat    int    `json:"seat"`
}

func (s *GameServer) handleSit(sess *session.Session, packet *network.Packet) error {
	var req sitReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad sit payload")
	}
	if err := s.tableService.Sit(context.Background(), req.TableID, req.Seat, sess.Player().ID); err != nil {
		return err
	}
	sess.Subscribe(models.ChannelTable(req.TableID))
	s.sendAck(sess, packet.MsgID, map[string]string{"table_id": req.TableID})
	return nil
}

type standReq struct {
	TableID string `json:"table_id"`
}

func (s *GameServer) handleStand(sess *session.Session, packet *network.Packet) error {
	var req standReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad stand payload")
	}
	if err := s.tableService.Stand(context.Background(), req.TableID, sess.Player().ID); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type playNowReq struct {
	RoomID string `json:"room_id"`
}

func (s *GameServer) handlePlayNow(sess *session.Session, packet *network.Packet) error {
	var req playNowReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad play payload")
	}
	tableID, seat, err := s.tableService.PlayNow(context.Background(), req.RoomID, sess.Player().ID)
	if err != nil {
		return err
	}
	sess.Subscribe(models.ChannelTable(tableID))
	data, _ := json.Marshal(map[string]interface{}{
		"request":  packet.MsgID,
		"table_id": tableID,
		"seat":     seat,
	})
	sess.Send(network.MsgTypeAck, data)
	return nil
}

type bootReq struct {
	TableID  string `json:"table_id"`
	TargetID string `json:"target_id"`
}

func (s *GameServer) handleBoot(sess *session.Session, packet *network.Packet) error {
	var req bootReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad boot payload")
	}
	if err := s.tableService.Boot(context.Background(), req.TableID, sess.Player().ID, req.TargetID); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type tableAccessReq struct {
	TableID    string            `json:"table_id"`
	AccessMode models.AccessMode `json:"access_mode"`
	Rated      bool              `json:"rated"`
}

func (s *GameServer) handleTableAccess(sess *session.Session, packet *network.Packet) error {
	var req tableAccessReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad access payload")
	}
	switch req.AccessMode {
	case models.AccessPublic, models.AccessProtected, models.AccessPrivate:
	default:
		return errs.E(errs.CodeValidation, "unknown access mode %q", req.AccessMode)
	}
	if err := s.tableService.ChangeTableAccess(context.Background(), req.TableID,
		sess.Player().ID, req.AccessMode, req.Rated); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type watchTableReq struct {
	TableID string `json:"table_id"`
}

func (s *GameServer) handleWatchTable(sess *session.Session, packet *network.Packet) error {
	var req watchTableReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad watch payload")
	}
	_, t, ok := s.roomManager.FindTable(req.TableID)
	if !ok {
		return errs.E(errs.CodeNotFound, "table %s not found", req.TableID)
	}
	if !t.CanWatch(sess.Player().ID) {
		return errs.E(errs.CodeForbidden, "table %d is private", t.Number)
	}
	sess.Subscribe(models.ChannelTable(req.TableID))
	data, _ := json.Marshal(t.State())
	sess.Send(network.MsgTypeRoomState, data)
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type setReadyReq struct {
	TableID string `json:"table_id"`
	Ready   bool   `json:"ready"`
}

func (s *GameServer) handleSetReady(sess *session.Session, packet *network.Packet) error {
	var req setReadyReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad ready payload")
	}
	if err := s.tableService.SetReady(context.Background(), req.TableID, sess.Player().ID, req.Ready); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type inviteReq struct {
	TableID   string `json:"table_id"`
	InviteeID string `json:"invitee_id"`
}

func (s *GameServer) handleInvite(sess *session.Session, packet *network.Packet) error {
	var req inviteReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad invite payload")
	}
	invitationID, err := s.tableService.Invite(context.Background(), req.TableID,
		sess.Player().ID, req.InviteeID)
	if err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, map[string]string{"invitation_id": invitationID})
	return nil
}

type acceptInviteReq struct {
	InvitationID string `json:"invitation_id"`
}

func (s *GameServer) handleAcceptInvite(sess *session.Session, packet *network.Packet) error {
	var req acceptInviteReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad accept payload")
	}
	if err := s.tableService.AcceptInvite(context.Background(), req.InvitationID, sess.Player().ID); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type declineInviteReq struct {
	InvitationID string `json:"invitation_id"`
	Reason       string `json:"reason"`
}

func (s *GameServer) handleDeclineInvite(sess *session.Session, packet *network.Packet) error {
	var req declineInviteReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad decline payload")
	}
	if err := s.tableService.DeclineInvite(context.Background(), req.InvitationID,
		sess.Player().ID, req.Reason); err != nil {
		return err
	}
	s.sendAck(sess, packet.MsgID, nil)
	return nil
}

type chatReq struct {
	RoomID  string `json:"room_id"`
	TableID string `json:"table_id"`
	Body    string `json:"body"`
}

func (s *GameServer) handleChat(sess *session.Session, packet *network.Packet) error {
	var req chatReq
	if err := json.Unmarshal(packet.Data, &req); err != nil {
		return errs.E(errs.CodeValidation, "bad chat payload")
	}
	return s.tableService.SendChat(context.Background(), req.RoomID, req.TableID,
		sess.Player().ID, req.Body)
}

// onSessionExpired runs the full departure once the reconnect window closes.
func (s *GameServer) onSessionExpired(sess *session.Session) {
	roomID := sess.RoomID()
	if roomID == "" {
		return
	}
	logger.Log.Infof("Session %s expired, player %s leaves room %s",
		sess.ID, sess.Player().ID, roomID)
	if err := s.tableService.LeaveRoom(context.Background(), roomID, sess.Player().ID); err != nil {
		logger.Log.Errorf("expiry leave for %s failed: %v", sess.Player().ID, err)
	}
}

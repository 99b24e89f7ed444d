package network

// 消息ID定义：1xx 房间/入座动作，2xx 对局动作，3xx 服务端推送
const (
	MsgTypeHeartbeat = 1
	MsgTypeResume    = 2

	MsgTypeJoinRoom    = 101
	MsgTypeLeaveRoom   = 102
	MsgTypeCreateTable = 103
	MsgTypeSit         = 104
	MsgTypeStand       = 105
	MsgTypePlayNow     = 106
	MsgTypeBoot        = 107
	MsgTypeTableAccess = 108
	MsgTypeWatchTable  = 109

	MsgTypeSetReady      = 201
	MsgTypeInvite        = 202
	MsgTypeAcceptInvite  = 203
	MsgTypeDeclineInvite = 204
	MsgTypeChat          = 205

	MsgTypeEvent     = 301
	MsgTypeRoomState = 302
	MsgTypeError     = 303
	MsgTypeAck       = 304
)

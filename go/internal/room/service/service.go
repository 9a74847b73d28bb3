// Package service exposes the room engine as a Connect RPC service with a
// JSON codec.
package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/mcdev12/buzzroom/go/internal/models"
	"github.com/mcdev12/buzzroom/go/internal/room/race"
	"github.com/mcdev12/buzzroom/go/internal/room/roomerr"
	"github.com/mcdev12/buzzroom/go/internal/room/score"
)

// RoomServiceName is the fully-qualified name of the service.
const RoomServiceName = "buzzroom.room.v1.RoomService"

const (
	CreateRoomProcedure         = "/" + RoomServiceName + "/CreateRoom"
	GetRoomProcedure            = "/" + RoomServiceName + "/GetRoom"
	JoinRoomProcedure           = "/" + RoomServiceName + "/JoinRoom"
	LeaveRoomProcedure          = "/" + RoomServiceName + "/LeaveRoom"
	KickPlayerProcedure         = "/" + RoomServiceName + "/KickPlayer"
	DeleteRoomProcedure         = "/" + RoomServiceName + "/DeleteRoom"
	AttemptSignalProcedure      = "/" + RoomServiceName + "/AttemptSignal"
	SubmitAnswerProcedure       = "/" + RoomServiceName + "/SubmitAnswer"
	AdjudicateProcedure         = "/" + RoomServiceName + "/Adjudicate"
	SetModeProcedure            = "/" + RoomServiceName + "/SetMode"
	StartCountdownProcedure     = "/" + RoomServiceName + "/StartCountdown"
	StopCountdownProcedure      = "/" + RoomServiceName + "/StopCountdown"
	InitializeRotationProcedure = "/" + RoomServiceName + "/InitializeRotation"
	AdvanceTurnProcedure        = "/" + RoomServiceName + "/AdvanceTurn"
	ResetRoundProcedure         = "/" + RoomServiceName + "/ResetRound"
	GetStandingsProcedure       = "/" + RoomServiceName + "/GetStandings"
	ReportMediaProcedure        = "/" + RoomServiceName + "/ReportMedia"
)

// Engine defines what the service layer needs from the orchestrator.
type Engine interface {
	CreateRoom(ctx context.Context, code, hostID, hostName string, mode models.Mode) (*models.Room, error)
	Snapshot(ctx context.Context, code string) (*models.Room, error)
	JoinRoom(ctx context.Context, code, participantID, name, team string) (*models.Player, error)
	LeaveRoom(ctx context.Context, code, participantID string) error
	KickPlayer(ctx context.Context, code, actor, participantID string) error
	DeleteRoom(ctx context.Context, code, actor string) error
	AttemptSignal(ctx context.Context, code, participantID, name string) (race.Outcome, error)
	SubmitAnswer(ctx context.Context, code, participantID, text string) error
	Adjudicate(ctx context.Context, code, actor string, verdict models.Verdict) (*score.Result, error)
	SetMode(ctx context.Context, code, actor string, mode models.Mode, overrides *models.ModeSettings) (models.GameMode, error)
	StartCountdown(ctx context.Context, code, actor, itemID string) error
	StopCountdown(ctx context.Context, code, actor string) error
	InitializeRotation(ctx context.Context, code, actor string) (*models.TurnState, error)
	AdvanceTurn(ctx context.Context, code, actor string) (*models.TurnState, error)
	ResetRound(ctx context.Context, code, actor string) error
	Standings(ctx context.Context, code string) ([]*models.Player, []score.TeamStanding, error)
	MediaStarted(ctx context.Context, code, itemID string) error
	MediaEnded(ctx context.Context, code, itemID string) error
}

// Service implements the RoomService RPCs.
type Service struct {
	engine  Engine
	limiter *ParticipantLimiter
}

// NewService creates the service. limiter may be nil to disable throttling.
func NewService(engine Engine, limiter *ParticipantLimiter) *Service {
	return &Service{engine: engine, limiter: limiter}
}

// NewHandler builds an HTTP handler serving every procedure, and returns the
// path prefix to mount it on.
func NewHandler(s *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateRoomProcedure, connect.NewUnaryHandler(CreateRoomProcedure, s.CreateRoom, opts...))
	mux.Handle(GetRoomProcedure, connect.NewUnaryHandler(GetRoomProcedure, s.GetRoom, opts...))
	mux.Handle(JoinRoomProcedure, connect.NewUnaryHandler(JoinRoomProcedure, s.JoinRoom, opts...))
	mux.Handle(LeaveRoomProcedure, connect.NewUnaryHandler(LeaveRoomProcedure, s.LeaveRoom, opts...))
	mux.Handle(KickPlayerProcedure, connect.NewUnaryHandler(KickPlayerProcedure, s.KickPlayer, opts...))
	mux.Handle(DeleteRoomProcedure, connect.NewUnaryHandler(DeleteRoomProcedure, s.DeleteRoom, opts...))
	mux.Handle(AttemptSignalProcedure, connect.NewUnaryHandler(AttemptSignalProcedure, s.AttemptSignal, opts...))
	mux.Handle(SubmitAnswerProcedure, connect.NewUnaryHandler(SubmitAnswerProcedure, s.SubmitAnswer, opts...))
	mux.Handle(AdjudicateProcedure, connect.NewUnaryHandler(AdjudicateProcedure, s.Adjudicate, opts...))
	mux.Handle(SetModeProcedure, connect.NewUnaryHandler(SetModeProcedure, s.SetMode, opts...))
	mux.Handle(StartCountdownProcedure, connect.NewUnaryHandler(StartCountdownProcedure, s.StartCountdown, opts...))
	mux.Handle(StopCountdownProcedure, connect.NewUnaryHandler(StopCountdownProcedure, s.StopCountdown, opts...))
	mux.Handle(InitializeRotationProcedure, connect.NewUnaryHandler(InitializeRotationProcedure, s.InitializeRotation, opts...))
	mux.Handle(AdvanceTurnProcedure, connect.NewUnaryHandler(AdvanceTurnProcedure, s.AdvanceTurn, opts...))
	mux.Handle(ResetRoundProcedure, connect.NewUnaryHandler(ResetRoundProcedure, s.ResetRound, opts...))
	mux.Handle(GetStandingsProcedure, connect.NewUnaryHandler(GetStandingsProcedure, s.GetStandings, opts...))
	mux.Handle(ReportMediaProcedure, connect.NewUnaryHandler(ReportMediaProcedure, s.ReportMedia, opts...))
	return "/" + RoomServiceName + "/", mux
}

func (s *Service) CreateRoom(ctx context.Context, req *connect.Request[CreateRoomRequest]) (*connect.Response[RoomResponse], error) {
	room, err := s.engine.CreateRoom(ctx, req.Msg.Code, req.Msg.HostID, req.Msg.HostName, req.Msg.Mode)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoomResponse{Room: room}), nil
}

func (s *Service) GetRoom(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[RoomResponse], error) {
	room, err := s.engine.Snapshot(ctx, req.Msg.Code)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&RoomResponse{Room: room}), nil
}

func (s *Service) JoinRoom(ctx context.Context, req *connect.Request[JoinRoomRequest]) (*connect.Response[PlayerResponse], error) {
	player, err := s.engine.JoinRoom(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Name, req.Msg.Team)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PlayerResponse{Player: player}), nil
}

func (s *Service) LeaveRoom(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.LeaveRoom(ctx, req.Msg.Code, req.Msg.ParticipantID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) KickPlayer(ctx context.Context, req *connect.Request[KickPlayerRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.KickPlayer(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.TargetID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) DeleteRoom(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.DeleteRoom(ctx, req.Msg.Code, req.Msg.ParticipantID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

// AttemptSignal races the caller for the current round. A lost race is a
// normal response, not an error.
func (s *Service) AttemptSignal(ctx context.Context, req *connect.Request[AttemptSignalRequest]) (*connect.Response[AttemptSignalResponse], error) {
	if s.limiter != nil && !s.limiter.Allow(req.Msg.Code, req.Msg.ParticipantID) {
		return nil, toConnectError(ErrRateLimited)
	}

	out, err := s.engine.AttemptSignal(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Name)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &AttemptSignalResponse{Won: out.Won, ConfigError: out.ConfigError, Winner: out.Winner}
	if !out.Won {
		resp.Reason = string(out.Reason)
	}
	return connect.NewResponse(resp), nil
}

func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.SubmitAnswer(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Text); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) Adjudicate(ctx context.Context, req *connect.Request[AdjudicateRequest]) (*connect.Response[AdjudicateResponse], error) {
	res, err := s.engine.Adjudicate(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Verdict)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&AdjudicateResponse{Player: res.Player, Delta: res.Delta}), nil
}

func (s *Service) SetMode(ctx context.Context, req *connect.Request[SetModeRequest]) (*connect.Response[SetModeResponse], error) {
	gm, err := s.engine.SetMode(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.Mode, req.Msg.Settings)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SetModeResponse{GameMode: gm}), nil
}

func (s *Service) StartCountdown(ctx context.Context, req *connect.Request[StartCountdownRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.StartCountdown(ctx, req.Msg.Code, req.Msg.ParticipantID, req.Msg.ItemID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) StopCountdown(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.StopCountdown(ctx, req.Msg.Code, req.Msg.ParticipantID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) InitializeRotation(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[TurnResponse], error) {
	ts, err := s.engine.InitializeRotation(ctx, req.Msg.Code, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TurnResponse{Turn: ts}), nil
}

func (s *Service) AdvanceTurn(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[TurnResponse], error) {
	ts, err := s.engine.AdvanceTurn(ctx, req.Msg.Code, req.Msg.ParticipantID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&TurnResponse{Turn: ts}), nil
}

func (s *Service) ResetRound(ctx context.Context, req *connect.Request[ParticipantRequest]) (*connect.Response[Empty], error) {
	if err := s.engine.ResetRound(ctx, req.Msg.Code, req.Msg.ParticipantID); err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

func (s *Service) GetStandings(ctx context.Context, req *connect.Request[GetRoomRequest]) (*connect.Response[StandingsResponse], error) {
	players, teams, err := s.engine.Standings(ctx, req.Msg.Code)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&StandingsResponse{Players: players, Teams: teams}), nil
}

// ReportMedia accepts playback notifications from the host's media player.
func (s *Service) ReportMedia(ctx context.Context, req *connect.Request[ReportMediaRequest]) (*connect.Response[Empty], error) {
	room, err := s.engine.Snapshot(ctx, req.Msg.Code)
	if err != nil {
		return nil, toConnectError(err)
	}
	if !room.IsHost(req.Msg.ParticipantID) {
		return nil, toConnectError(roomerr.Validation("only the host may report playback"))
	}

	switch strings.ToLower(req.Msg.Kind) {
	case "started":
		err = s.engine.MediaStarted(ctx, req.Msg.Code, req.Msg.ItemID)
	case "ended":
		err = s.engine.MediaEnded(ctx, req.Msg.Code, req.Msg.ItemID)
	default:
		err = roomerr.Validation("unknown media notification %q", req.Msg.Kind)
	}
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&Empty{}), nil
}

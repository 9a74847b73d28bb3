package service

import (
	"context"

	"connectrpc.com/connect"
)

// Client calls a RoomService over HTTP.
type Client struct {
	createRoom     *connect.Client[CreateRoomRequest, RoomResponse]
	getRoom        *connect.Client[GetRoomRequest, RoomResponse]
	joinRoom       *connect.Client[JoinRoomRequest, PlayerResponse]
	attemptSignal  *connect.Client[AttemptSignalRequest, AttemptSignalResponse]
	adjudicate     *connect.Client[AdjudicateRequest, AdjudicateResponse]
	setMode        *connect.Client[SetModeRequest, SetModeResponse]
	startCountdown *connect.Client[StartCountdownRequest, Empty]
	resetRound     *connect.Client[ParticipantRequest, Empty]
	reportMedia    *connect.Client[ReportMediaRequest, Empty]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	return &Client{
		createRoom:     connect.NewClient[CreateRoomRequest, RoomResponse](httpClient, baseURL+CreateRoomProcedure, opts...),
		getRoom:        connect.NewClient[GetRoomRequest, RoomResponse](httpClient, baseURL+GetRoomProcedure, opts...),
		joinRoom:       connect.NewClient[JoinRoomRequest, PlayerResponse](httpClient, baseURL+JoinRoomProcedure, opts...),
		attemptSignal:  connect.NewClient[AttemptSignalRequest, AttemptSignalResponse](httpClient, baseURL+AttemptSignalProcedure, opts...),
		adjudicate:     connect.NewClient[AdjudicateRequest, AdjudicateResponse](httpClient, baseURL+AdjudicateProcedure, opts...),
		setMode:        connect.NewClient[SetModeRequest, SetModeResponse](httpClient, baseURL+SetModeProcedure, opts...),
		startCountdown: connect.NewClient[StartCountdownRequest, Empty](httpClient, baseURL+StartCountdownProcedure, opts...),
		resetRound:     connect.NewClient[ParticipantRequest, Empty](httpClient, baseURL+ResetRoundProcedure, opts...),
		reportMedia:    connect.NewClient[ReportMediaRequest, Empty](httpClient, baseURL+ReportMediaProcedure, opts...),
	}
}

func (c *Client) CreateRoom(ctx context.Context, req *CreateRoomRequest) (*RoomResponse, error) {
	resp, err := c.createRoom.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetRoom(ctx context.Context, req *GetRoomRequest) (*RoomResponse, error) {
	resp, err := c.getRoom.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) JoinRoom(ctx context.Context, req *JoinRoomRequest) (*PlayerResponse, error) {
	resp, err := c.joinRoom.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) AttemptSignal(ctx context.Context, req *AttemptSignalRequest) (*AttemptSignalResponse, error) {
	resp, err := c.attemptSignal.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) Adjudicate(ctx context.Context, req *AdjudicateRequest) (*AdjudicateResponse, error) {
	resp, err := c.adjudicate.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) SetMode(ctx context.Context, req *SetModeRequest) (*SetModeResponse, error) {
	resp, err := c.setMode.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) StartCountdown(ctx context.Context, req *StartCountdownRequest) error {
	_, err := c.startCountdown.CallUnary(ctx, connect.NewRequest(req))
	return err
}

func (c *Client) ResetRound(ctx context.Context, req *ParticipantRequest) error {
	_, err := c.resetRound.CallUnary(ctx, connect.NewRequest(req))
	return err
}

func (c *Client) ReportMedia(ctx context.Context, req *ReportMediaRequest) error {
	_, err := c.reportMedia.CallUnary(ctx, connect.NewRequest(req))
	return err
}

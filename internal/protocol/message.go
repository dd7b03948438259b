package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"bidcast/internal/core/domain"
)

// Kind discriminates the fixed, closed set of wire message types. Every
// message is a flat JSON object whose "type" field carries the Kind.
type Kind string

const (
	KindJoin         Kind = "join"
	KindFrame        Kind = "frame"
	KindChat         Kind = "chat"
	KindBid          Kind = "bid"
	KindBuyNow       Kind = "buy_now"
	KindPrice        Kind = "price"
	KindViewers      Kind = "viewers"
	KindLiveStatus   Kind = "live_status"
	KindBanUser      Kind = "ban_user"
	KindUnbanUser    Kind = "unban_user"
	KindBanList      Kind = "ban_list"
	KindYouAreBanned Kind = "you_are_banned"
	KindSetUsername  Kind = "set_username"
)

// ErrUnknownKind marks a message with a type outside the closed set. Routers
// skip these without treating the session as broken (forward compatibility).
var ErrUnknownKind = errors.New("unknown message kind")

type Join struct {
	Type     Kind        `json:"type"`
	Role     domain.Role `json:"role"`
	Username string      `json:"username,omitempty"`
}

type Frame struct {
	Type Kind   `json:"type"`
	Data string `json:"data"`
}

type Chat struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
	Text     string `json:"text"`
}

type Bid struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
	Amount   int    `json:"amount"`
}

type BuyNow struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
}

type Price struct {
	Type    Kind `json:"type"`
	Current int  `json:"current"`
}

type Viewers struct {
	Type  Kind `json:"type"`
	Count int  `json:"count"`
}

type LiveStatus struct {
	Type   Kind `json:"type"`
	IsLive bool `json:"is_live"`
}

// BanRequest covers ban_user and unban_user; the Kind tells them apart.
type BanRequest struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
}

// BanList is a full moderation-set snapshot, never a delta.
type BanList struct {
	Type   Kind     `json:"type"`
	Banned []string `json:"banned"`
}

// YouAreBanned is the personal ban-state notice sent to a single session.
type YouAreBanned struct {
	Type   Kind `json:"type"`
	Banned bool `json:"banned"`
}

type SetUsername struct {
	Type     Kind   `json:"type"`
	Username string `json:"username"`
}

func NewJoin(role domain.Role, username string) Join {
	return Join{Type: KindJoin, Role: role, Username: username}
}

func NewFrame(data string) Frame { return Frame{Type: KindFrame, Data: data} }

func NewChat(username, text string) Chat {
	return Chat{Type: KindChat, Username: username, Text: text}
}

func NewBid(username string, amount int) Bid {
	return Bid{Type: KindBid, Username: username, Amount: amount}
}

func NewBuyNow(username string) BuyNow {
	return BuyNow{Type: KindBuyNow, Username: username}
}

func NewPrice(current int) Price { return Price{Type: KindPrice, Current: current} }

func NewViewers(count int) Viewers { return Viewers{Type: KindViewers, Count: count} }

func NewLiveStatus(isLive bool) LiveStatus {
	return LiveStatus{Type: KindLiveStatus, IsLive: isLive}
}

func NewBanUser(username string) BanRequest {
	return BanRequest{Type: KindBanUser, Username: username}
}

func NewUnbanUser(username string) BanRequest {
	return BanRequest{Type: KindUnbanUser, Username: username}
}

func NewBanList(banned []string) BanList {
	if banned == nil {
		banned = []string{}
	}
	return BanList{Type: KindBanList, Banned: banned}
}

func NewYouAreBanned(banned bool) YouAreBanned {
	return YouAreBanned{Type: KindYouAreBanned, Banned: banned}
}

func NewSetUsername(username string) SetUsername {
	return SetUsername{Type: KindSetUsername, Username: username}
}

// KindOf reports the wire kind of a decoded message.
func KindOf(msg any) Kind {
	switch m := msg.(type) {
	case Join:
		return m.Type
	case Frame:
		return m.Type
	case Chat:
		return m.Type
	case Bid:
		return m.Type
	case BuyNow:
		return m.Type
	case Price:
		return m.Type
	case Viewers:
		return m.Type
	case LiveStatus:
		return m.Type
	case BanRequest:
		return m.Type
	case BanList:
		return m.Type
	case YouAreBanned:
		return m.Type
	case SetUsername:
		return m.Type
	default:
		return ""
	}
}

// Encode marshals any outbound message to its wire form.
func Encode(msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return data, nil
}

type envelope struct {
	Type Kind `json:"type"`
}

// Decode parses one inbound wire message into its typed form. Malformed
// payloads (unparseable JSON, missing type, or fields that do not match the
// declared kind) return an error the caller logs and drops; an unrecognized
// kind returns ErrUnknownKind so routers can skip it silently.
func Decode(data []byte) (any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("malformed message: missing type")
	}

	decode := func(v any) (any, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
		return v, nil
	}

	switch env.Type {
	case KindJoin:
		v, err := decode(&Join{})
		if err != nil {
			return nil, err
		}
		m := v.(*Join)
		if m.Role != domain.RoleStreamer && m.Role != domain.RoleViewer {
			return nil, fmt.Errorf("malformed join payload: invalid role %q", m.Role)
		}
		return *m, nil
	case KindFrame:
		v, err := decode(&Frame{})
		if err != nil {
			return nil, err
		}
		return *v.(*Frame), nil
	case KindChat:
		v, err := decode(&Chat{})
		if err != nil {
			return nil, err
		}
		return *v.(*Chat), nil
	case KindBid:
		v, err := decode(&Bid{})
		if err != nil {
			return nil, err
		}
		return *v.(*Bid), nil
	case KindBuyNow:
		v, err := decode(&BuyNow{})
		if err != nil {
			return nil, err
		}
		return *v.(*BuyNow), nil
	case KindPrice:
		v, err := decode(&Price{})
		if err != nil {
			return nil, err
		}
		return *v.(*Price), nil
	case KindViewers:
		v, err := decode(&Viewers{})
		if err != nil {
			return nil, err
		}
		return *v.(*Viewers), nil
	case KindLiveStatus:
		v, err := decode(&LiveStatus{})
		if err != nil {
			return nil, err
		}
		return *v.(*LiveStatus), nil
	case KindBanUser, KindUnbanUser:
		v, err := decode(&BanRequest{})
		if err != nil {
			return nil, err
		}
		m := *v.(*BanRequest)
		m.Type = env.Type
		return m, nil
	case KindBanList:
		v, err := decode(&BanList{})
		if err != nil {
			return nil, err
		}
		return *v.(*BanList), nil
	case KindYouAreBanned:
		v, err := decode(&YouAreBanned{})
		if err != nil {
			return nil, err
		}
		return *v.(*YouAreBanned), nil
	case KindSetUsername:
		v, err := decode(&SetUsername{})
		if err != nil {
			return nil, err
		}
		return *v.(*SetUsername), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, env.Type)
	}
}

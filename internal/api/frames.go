package api

import (
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/gateway"
)

var errMissingID = errors.New("api: frame id missing")

// FramePayload is the JSON form of a CAN frame. Data is hex encoded.
type FramePayload struct {
	ID       *uint32 `json:"id"`
	Extended bool    `json:"extended,omitempty"`
	Remote   bool    `json:"remote,omitempty"`
	Length   *uint8  `json:"len,omitempty"`
	Data     string  `json:"data,omitempty"`
}

// Bind implements render.Binder.
func (p *FramePayload) Bind(r *http.Request) error {
	if p.ID == nil {
		return errMissingID
	}
	return nil
}

// Frame converts p to a bus frame.
func (p *FramePayload) Frame() (can.Frame, error) {
	if p.ID == nil {
		return can.Frame{}, errMissingID
	}
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return can.Frame{}, err
	}
	id := can.StandardID(uint16(*p.ID))
	if p.Extended {
		id = can.ExtendedID(*p.ID)
	} else if *p.ID > can.CAN_SFF_MASK {
		return can.Frame{}, can.ErrInvalidID
	}
	f, err := can.NewFrame(id, data)
	if err != nil {
		return f, err
	}
	if p.Remote {
		f.CANID |= can.CAN_RTR_FLAG
		if p.Length != nil {
			f.Len = *p.Length
		}
	}
	return f, f.Validate()
}

func payloadOf(f can.Frame) FramePayload {
	id := f.ID()
	v := id.Value()
	n := f.Len
	p := FramePayload{ID: &v, Extended: id.Extended(), Remote: f.Remote(), Length: &n}
	if !p.Remote {
		p.Data = hex.EncodeToString(f.Payload())
	}
	return p
}

// EventPayload is a bus event pushed to websocket clients.
type EventPayload struct {
	Time   time.Time    `json:"time"`
	Source string       `json:"source"`
	Node   int          `json:"node"`
	Frame  FramePayload `json:"frame"`
}

func eventOf(ev gateway.Event) EventPayload {
	return EventPayload{Time: ev.Time, Source: ev.Source, Node: ev.Node, Frame: payloadOf(ev.Frame)}
}

// ErrResponse renders an error with its HTTP status.
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(code int, err error) render.Renderer {
	return &ErrResponse{Err: err, HTTPStatusCode: code, StatusText: http.StatusText(code), ErrorText: err.Error()}
}

func ErrInvalidRequest(err error) render.Renderer { return errResponse(http.StatusBadRequest, err) }

func ErrUnavailable(err error) render.Renderer {
	return errResponse(http.StatusServiceUnavailable, err)
}

func ErrConflict(err error) render.Renderer { return errResponse(http.StatusConflict, err) }

var ErrNotFound = &ErrResponse{HTTPStatusCode: http.StatusNotFound, StatusText: "Resource not found."}

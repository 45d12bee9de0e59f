package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"baria-go/internal/screening"
	"baria-go/internal/service"
	apperrors "baria-go/pkg/errors"
	"baria-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AskHandler serves the patient-facing routes: ask, screen and the streamed ask.
type AskHandler struct {
	askService service.AskService
}

func NewAskHandler(askService service.AskService) *AskHandler {
	return &AskHandler{askService: askService}
}

// userID accepts both numeric (Telegram) and string ids.
type userID string

func (u *userID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*u = userID(n.String())
	return nil
}

type askRequest struct {
	UserID   userID `json:"user_id"`
	Question string `json:"question"`
}

type screenRequest struct {
	UserID userID `json:"user_id"`
	Text   string `json:"text"`
}

type screenResponse struct {
	screening.Result
	Warning string `json:"warning,omitempty"`
}

func (h *AskHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "AskHandler", apperrors.Invalidf("malformed body: %v", err))
		return
	}
	res, err := h.askService.Ask(c.Request.Context(), string(req.UserID), req.Question)
	if err != nil {
		respondError(c, "AskHandler", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Screen runs screening only; the warning text is included when critical.
func (h *AskHandler) Screen(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, "AskHandler", apperrors.Invalidf("malformed body: %v", err))
		return
	}
	res := h.askService.Screen(c.Request.Context(), string(req.UserID), req.Text)
	out := screenResponse{Result: res}
	if res.IsCritical {
		out.Warning = screening.FormatWarning(res.Flags)
	}
	c.JSON(http.StatusOK, out)
}

// chunkWriter wraps each delta as {"chunk": "..."}.
type chunkWriter struct {
	conn *websocket.Conn
}

func (w chunkWriter) WriteMessage(messageType int, data []byte) error {
	b, _ := json.Marshal(map[string]string{"chunk": string(data)})
	return w.conn.WriteMessage(messageType, b)
}

func writeJSON(conn *websocket.Conn, v interface{}) {
	b, _ := json.Marshal(v)
	_ = conn.WriteMessage(websocket.TextMessage, b)
}

// Stream upgrades to a websocket. Each text frame is a question (plain text
// or {"question": "..."}); the answer is streamed as chunk frames followed by
// a completion frame. A completion with status "aborted" ends a partial answer
// and carries the fallback text in "message".
func (h *AskHandler) Stream(c *gin.Context) {
	uid := strings.TrimSpace(c.Query("user_id"))
	if uid == "" {
		respondError(c, "AskHandler", apperrors.Invalidf("user_id query parameter is required"))
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("[AskHandler] websocket upgrade failed", err)
		return
	}
	defer conn.Close()
	log.Infof("[AskHandler] websocket opened for user %s", uid)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("[AskHandler] websocket read failed for user %s: %v", uid, err)
			}
			return
		}
		question := string(message)
		var framed struct {
			Question string `json:"question"`
		}
		if len(message) > 0 && message[0] == '{' && json.Unmarshal(message, &framed) == nil {
			question = framed.Question
		}

		res, err := h.askService.StreamAnswer(c.Request.Context(), uid, question, chunkWriter{conn: conn})
		if err != nil {
			writeJSON(conn, gin.H{"error": err.Error()})
			writeJSON(conn, completion(nil))
			continue
		}
		writeJSON(conn, completion(res))
	}
}

func completion(res *service.AskResult) gin.H {
	msg := gin.H{
		"type":      "completion",
		"status":    "finished",
		"timestamp": time.Now().UnixMilli(),
	}
	if res != nil {
		msg["critical"] = res.Critical
		msg["severity"] = res.Severity
		msg["sources"] = res.Sources
		msg["fallback"] = res.Fallback
		if res.Aborted {
			msg["status"] = "aborted"
			msg["message"] = res.Answer
		}
	}
	return msg
}

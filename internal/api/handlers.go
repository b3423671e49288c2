package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/normanking/veriflow/internal/chart"
	"github.com/normanking/veriflow/internal/chat"
	"github.com/normanking/veriflow/internal/history"
)

type messageRequest struct {
	Text string `json:"text"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type speechRequest struct {
	Enabled *bool    `json:"enabled"`
	Rate    *float64 `json:"rate"`
	Voice   *string  `json:"voice"`
	Mode    *string  `json:"mode"`
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Snapshot())
}

func (s *Server) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"turns": s.orch.Turns()})
}

// defaultLogLimit is how many entries GET /api/logs returns without ?limit.
const defaultLogLimit = 100

// handleLogs returns the most recent log entries, oldest first. limit=0 returns
// the whole history ring.
func (s *Server) handleLogs(c *gin.Context) {
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": s.log.GetHistory(limit),
		"file":    s.log.GetLogPath(),
	})
}

func (s *Server) handleMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.respondSubmit(c, s.orch.SubmitAsync(req.Text))
}

func (s *Server) handlePrompt(c *gin.Context) {
	var req promptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.respondSubmit(c, s.orch.SubmitPromptAsync(req.Prompt))
}

func (s *Server) respondSubmit(c *gin.Context, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case errors.Is(err, chat.ErrEmptyInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleSetInput(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s.orch.SetInput(req.Text)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleFocus(c *gin.Context) {
	s.orch.FocusInput()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleBlur(c *gin.Context) {
	s.orch.BlurInput()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDataset(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}
	name := c.Query("name")

	if err := s.orch.UploadDataset(name, raw); err != nil {
		if errors.Is(err, chat.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		turns := s.orch.Turns()
		var last history.Turn
		if len(turns) > 0 {
			last = turns[len(turns)-1]
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "turn": last})
		return
	}

	ds := s.orch.Dataset()
	c.JSON(http.StatusOK, gin.H{"name": ds.Name, "records": ds.Len()})
}

func (s *Server) handleChart(c *gin.Context) {
	format, err := chart.ParseFormat(c.Query("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, s.orch.Chart(), format, chart.Options{}); err != nil {
		if errors.Is(err, chart.ErrNothingToRender) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		s.log.Error("api", "Chart render failed", err, nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "render failed"})
		return
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *Server) handlePose(c *gin.Context) {
	if s.avatar == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "avatar not running"})
		return
	}
	c.JSON(http.StatusOK, s.avatar.Pose())
}

func (s *Server) handleGetSpeech(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Snapshot().Speech)
}

func (s *Server) handlePutSpeech(c *gin.Context) {
	var req speechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Mode != nil {
		if err := s.orch.SetListeningMode(chat.ListeningMode(*req.Mode)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Voice != nil {
		if err := s.orch.SetVoice(*req.Voice); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.Rate != nil {
		s.orch.SetSpeechRate(*req.Rate)
	}
	if req.Enabled != nil {
		s.orch.SetSpeechEnabled(*req.Enabled)
	}
	c.JSON(http.StatusOK, s.orch.Snapshot().Speech)
}

func (s *Server) handleListen(c *gin.Context) {
	switch c.Param("action") {
	case "start":
		s.orch.StartListening()
	case "stop":
		s.orch.StopListening()
	case "toggle":
		s.orch.ToggleListening()
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMic(c *gin.Context) {
	switch c.Param("action") {
	case "press":
		s.orch.MicPress()
	case "release":
		s.orch.MicRelease()
	default:
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown action"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("api", "WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := s.hub.Serve(c.Request.Context(), conn); err != nil {
		s.log.Debug("api", "WebSocket closed", map[string]interface{}{"error": err.Error()})
	}
}

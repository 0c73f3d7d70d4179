package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	werr "github.com/msto63/wiener/foundation/core/error"
	"github.com/msto63/wiener/internal/orchestrator"
	"github.com/msto63/wiener/internal/script"
)

// SubmitRequest carries either a goal predicate or a script name
type SubmitRequest struct {
	Goal   string `json:"goal,omitempty"`
	Script string `json:"script,omitempty"`
}

// SubmitResponse reports the id a goal is tracked under
type SubmitResponse struct {
	ID     int64               `json:"id"`
	Status orchestrator.Status `json:"status"`
}

// ScriptInfo describes a loaded template
type ScriptInfo struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Primitive bool     `json:"primitive"`
	Roles     []string `json:"roles,omitempty"`
	Effects   []string `json:"effects,omitempty"`
}

func (s *Server) submitGoal(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, werr.Wrap(err, "invalid request body").WithCode(werr.CodeInvalidInput))
		return
	}
	if (req.Goal == "") == (req.Script == "") {
		respondError(c, werr.New("exactly one of goal and script is required").WithCode(werr.CodeInvalidInput))
		return
	}

	var (
		id  int64
		err error
	)
	if req.Script != "" {
		id, err = s.orch.RunScript(c.Request.Context(), req.Script)
	} else {
		var goal script.Term
		goal, err = script.ParseTerm(req.Goal)
		if err != nil {
			respondError(c, werr.Wrap(err, "invalid goal").WithCode(werr.CodeInvalidInput))
			return
		}
		id, err = s.orch.SubmitGoal(c.Request.Context(), goal)
	}
	if errors.Is(err, orchestrator.ErrClosed) {
		err = werr.Wrap(err, "orchestrator stopped").WithCode(werr.CodeServiceUnavailable)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, SubmitResponse{ID: id, Status: s.orch.GoalStatus(id)})
}

func (s *Server) listGoals(c *gin.Context) {
	filter := orchestrator.Status(c.Query("status"))
	goals := s.orch.Goals()
	out := make([]orchestrator.GoalInfo, 0, len(goals))
	for _, g := range goals {
		if filter == "" || g.Status == filter {
			out = append(out, g)
		}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getGoal(c *gin.Context) {
	id, ok := goalID(c)
	if !ok {
		return
	}
	info, found := s.orch.Goal(c.Request.Context(), id)
	if !found {
		respondError(c, werr.Wrap(orchestrator.ErrUnknownGoal, fmt.Sprintf("goal %d", id)).WithCode(werr.CodeNotFound))
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) cancelGoal(c *gin.Context) {
	id, ok := goalID(c)
	if !ok {
		return
	}
	if err := s.orch.Cancel(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": "cancelling"})
}

func (s *Server) listLocks(c *gin.Context) {
	c.JSON(http.StatusOK, s.orch.Locks())
}

func (s *Server) listScripts(c *gin.Context) {
	nodes := s.orch.Scripts().Registry().Nodes()
	out := make([]ScriptInfo, 0, len(nodes))
	for _, n := range nodes {
		info := ScriptInfo{Name: n.Name, Type: n.Type, Primitive: n.IsPrimitive()}
		for _, r := range n.Roles {
			info.Roles = append(info.Roles, r.Name)
		}
		for _, e := range n.Postconditions() {
			info.Effects = append(info.Effects, e.String())
		}
		out = append(out, info)
	}
	c.JSON(http.StatusOK, out)
}

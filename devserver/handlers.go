package devserver

import (
	"errors"
	"io"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/lectio/lectio/client"
	"github.com/rs/zerolog/log"
)

func (s *Server) handleRegister(c *gin.Context) {
	var req struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email" binding:"required"`
		Password  string `json:"password" binding:"required"`
		Role      string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	u, err := s.register(client.RegisterRequest{
		FirstName: req.FirstName, LastName: req.LastName, Email: req.Email, Password: req.Password, Role: req.Role,
	})
	if errors.Is(err, errEmailTaken) {
		detail(c, http.StatusBadRequest, "Email already registered")
		return
	}
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to register user")
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (s *Server) handleGetToken(c *gin.Context) {
	username := c.PostForm("username")
	password := c.PostForm("password")
	if username == "" || password == "" {
		detail(c, http.StatusUnprocessableEntity, "username and password are required")
		return
	}
	u, ok := s.authenticate(username, password)
	if !ok {
		detail(c, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	pair, err := s.issuePair(u.ID)
	if err != nil {
		detail(c, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	pair, err := s.rotate(req.RefreshToken)
	if err != nil {
		log.Debug().Err(err).Msg("Dev backend rejected refresh")
		detail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	c.JSON(http.StatusOK, pair)
}

func (s *Server) handleListLectures(c *gin.Context) {
	owner := c.GetString(contextKeyUserID)
	s.mu.Lock()
	out := make([]client.Lecture, 0, len(s.lectures))
	for _, l := range s.lectures {
		if l.ownerID == owner {
			out = append(out, l.record)
		}
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	c.JSON(http.StatusOK, out)
}

// lookup returns the caller's lecture or writes a 404.
func (s *Server) lookup(c *gin.Context) (*lecture, bool) {
	l, ok := s.lectures[c.Param("id")]
	if !ok || l.ownerID != c.GetString(contextKeyUserID) {
		detail(c, http.StatusNotFound, "Lecture not found")
		return nil, false
	}
	return l, true
}

func (s *Server) handleGetLecture(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	rec := l.advance()
	if l.done() && l.analysis == nil {
		l.analysis = sampleAnalysis(rec.ID)
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleGetAnalysis(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.lookup(c)
	if !ok {
		return
	}
	if l.analysis == nil {
		detail(c, http.StatusNotFound, "Analysis not found")
		return
	}
	if l.lag > 0 {
		l.lag--
		detail(c, http.StatusNotFound, "Analysis not found")
		return
	}
	c.JSON(http.StatusOK, l.analysis)
}

func (s *Server) handleUpload(c *gin.Context) {
	title := c.PostForm("title")
	if title == "" {
		detail(c, http.StatusUnprocessableEntity, "title is required")
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "file is required")
		return
	}
	size, err := io.Copy(io.Discard, file)
	_ = file.Close()
	if err != nil {
		detail(c, http.StatusBadRequest, "Failed to read upload")
		return
	}

	var subject *string
	if v := c.PostForm("subject"); v != "" {
		subject = &v
	}
	s.mu.Lock()
	l := s.newLectureLocked(c.GetString(contextKeyUserID), title, subject)
	rec := l.record
	s.mu.Unlock()

	log.Debug().Str("lecture_id", rec.ID).Str("file", header.Filename).Int64("bytes", size).Msg("Dev backend stored upload")
	c.JSON(http.StatusCreated, rec)
}

func sampleAnalysis(lectureID string) *client.Analysis {
	return &client.Analysis{
		ID:            lectureID,
		LectureID:     lectureID,
		AvgAttention:  0.72,
		AvgEngagement: 0.64,
		Score:         68.4,
		MetricsPath:   "metrics/" + lectureID + ".csv",
		SummaryJSON: []byte(`{"frames_analyzed":1800,"faces_total":2450,"avg_attention":0.72,` +
			`"avg_engagement":0.64,"score":68.4,"emotion_hist":{"neutral":0.61,"happy":0.22,"sad":0.17},` +
			`"top_peaks":[{"ts_sec":312.5,"window_start_sec":300,"window_end_sec":325,"attention_ratio":0.91,"engagement_ratio":0.84}],` +
			`"top_dips":[{"ts_sec":1210,"window_start_sec":1200,"window_end_sec":1225,"attention_ratio":0.31,"engagement_ratio":0.22}],` +
			`"suggestions":["Add a short recap around minute 20 where attention dips."]}`),
		CreatedAt: now(),
	}
}

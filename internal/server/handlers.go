package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/iskodirajga/sauce-hipchat-service/internal/card"
	"github.com/iskodirajga/sauce-hipchat-service/internal/glance"
	"github.com/iskodirajga/sauce-hipchat-service/internal/hipchat"
	"github.com/iskodirajga/sauce-hipchat-service/internal/logx"
	"github.com/iskodirajga/sauce-hipchat-service/internal/sauce"
	"github.com/iskodirajga/sauce-hipchat-service/internal/tenant"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("response encode failed", logx.Err(err))
	}
}

func (s *Server) healthcheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ---- configuration ----

type configView struct {
	Configured bool   `json:"configured"`
	Hostname   string `json:"hostname,omitempty"`
	Username   string `json:"username,omitempty"`
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	cred, err := s.resolver.Credential(r.Context(), auth.Identity.ClientKey)
	if err != nil {
		s.respondJSON(w, http.StatusOK, configView{})
		return
	}
	// The access key never leaves the settings store.
	s.respondJSON(w, http.StatusOK, configView{
		Configured: true,
		Hostname:   cred.Hostname,
		Username:   cred.Username,
	})
}

type configSubmission struct {
	Server    string `json:"server"`
	Username  string `json:"username"`
	AccessKey string `json:"accesskey"`
}

func (s *Server) postConfig(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	var sub configSubmission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid body"})
		return
	}
	if sub.Username == "" || sub.AccessKey == "" {
		s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "missing"})
		return
	}

	cred := sauce.Credential{Hostname: sub.Server, Username: sub.Username, AccessKey: sub.AccessKey}
	if err := s.resolver.Configure(r.Context(), auth.Identity.ClientKey, cred); err != nil {
		if errors.Is(err, tenant.ErrValidationFailed) {
			s.respondJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
			return
		}
		s.log.Error("credential store failed", logx.Err(err))
		s.respondJSON(w, http.StatusInternalServerError, map[string]any{"success": false})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- glance ----

func (s *Server) getGlance(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	api, err := s.resolver.Resolve(r.Context(), auth.Identity.ClientKey)
	if err != nil {
		// Unconfigured tenants see a sign-in prompt, not an error.
		s.respondJSON(w, http.StatusOK, glance.SignIn())
		return
	}
	payload, _, err := glance.Aggregate(r.Context(), api)
	if err != nil {
		s.log.Warn("glance aggregation failed", logx.String("client_key", auth.Identity.ClientKey), logx.Err(err))
		s.respondJSON(w, http.StatusOK, glance.SignIn())
		return
	}
	s.respondJSON(w, http.StatusOK, payload)
}

// ---- sidebar / dialogs ----

func (s *Server) sidebarJobs(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())

	cred, err := s.resolver.Credential(r.Context(), auth.Identity.ClientKey)
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"signin": true})
		return
	}
	jobs, err := s.resolver.Client(cred).ListJobs(r.Context())
	if err != nil {
		s.respondJSON(w, http.StatusBadGateway, map[string]any{"error": "provider unavailable"})
		return
	}
	normalized := make([]sauce.RawJob, 0, len(jobs))
	for _, j := range jobs {
		normalized = append(normalized, sauce.NormalizeJob(j))
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"hostname": cred.Hostname,
		"jobs":     normalized,
	})
}

func (s *Server) dialogJob(w http.ResponseWriter, r *http.Request)   { s.embedDialog(w, r, "job") }
func (s *Server) dialogVideo(w http.ResponseWriter, r *http.Request) { s.embedDialog(w, r, "video") }

// embedDialog supplies the data an embed view needs: the job id, the
// account hostname, and a public-link auth token for unauthenticated
// viewers.
func (s *Server) embedDialog(w http.ResponseWriter, r *http.Request, kind string) {
	auth, _ := authFromContext(r.Context())
	jobID := mux.Vars(r)["jobId"]

	cred, err := s.resolver.Credential(r.Context(), auth.Identity.ClientKey)
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"signin": true})
		return
	}
	link := s.resolver.Client(cred).CreatePublicLink(jobID)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"type":     kind,
		"jobId":    jobID,
		"hostname": cred.Hostname,
		"auth":     sauce.AuthTokenFromLink(link),
	})
}

func (s *Server) dialogScreenshots(w http.ResponseWriter, r *http.Request) {
	auth, _ := authFromContext(r.Context())
	jobID := mux.Vars(r)["jobId"]

	cred, err := s.resolver.Credential(r.Context(), auth.Identity.ClientKey)
	if err != nil {
		s.respondJSON(w, http.StatusOK, map[string]any{"signin": true})
		return
	}
	api := s.resolver.Client(cred)

	raw, err := api.GetJob(r.Context(), jobID)
	if err != nil {
		s.respondJSON(w, http.StatusBadGateway, map[string]any{"error": "provider unavailable"})
		return
	}
	assets, err := api.GetJobAssets(r.Context(), jobID)
	if err != nil {
		s.respondJSON(w, http.StatusBadGateway, map[string]any{"error": "provider unavailable"})
		return
	}
	link := api.CreatePublicLink(jobID)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"job":      sauce.NormalizeJob(raw),
		"assets":   assets,
		"hostname": cred.Hostname,
		"auth":     sauce.AuthTokenFromLink(link),
	})
}

// ---- webhooks ----

// webhookSauceActivity handles the provider's "new job activity" push:
// refresh the room's glance and post a short notice. The webhook is
// acknowledged no matter what happens downstream, so the sender never
// retries on our account.
func (s *Server) webhookSauceActivity(w http.ResponseWriter, r *http.Request) {
	if s.met != nil {
		s.met.WebhooksTotal.WithLabelValues("sauce_activity").Inc()
	}
	auth, _ := authFromContext(r.Context())
	ctx := r.Context()
	log := s.log.With(logx.String("client_key", auth.Identity.ClientKey))

	if api, err := s.resolver.Resolve(ctx, auth.Identity.ClientKey); err == nil {
		if payload, _, err := glance.Aggregate(ctx, api); err == nil {
			target := hipchat.RoomTarget{RoomID: auth.Identity.RoomID, GroupID: auth.ClientInfo.GroupID}
			if err := s.chat.UpdateGlance(ctx, auth.ClientInfo, target, s.cfg.Addon.GlanceKey, payload); err != nil {
				log.Warn("glance push failed", logx.Err(err))
			}
		} else {
			log.Warn("glance aggregation failed", logx.Err(err))
		}
	}
	if err := s.chat.SendMessage(ctx, auth.ClientInfo, auth.Identity.RoomID, "Updating glance", nil, nil); err != nil {
		log.Warn("notice failed", logx.Err(err))
	}

	w.WriteHeader(http.StatusOK)
}

type messageWebhook struct {
	Item struct {
		Message struct {
			Message string `json:"message"`
		} `json:"message"`
	} `json:"item"`
}

// webhookMessage scans a chat message for a job link and, on a match,
// posts a status card for that job back to the room. Most messages are
// not job links; that is a valid outcome, not an error.
func (s *Server) webhookMessage(w http.ResponseWriter, r *http.Request) {
	if s.met != nil {
		s.met.WebhooksTotal.WithLabelValues("message").Inc()
	}
	auth, _ := authFromContext(r.Context())
	ctx := r.Context()
	log := s.log.With(logx.String("client_key", auth.Identity.ClientKey))

	var body messageWebhook
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	m := s.jobLinkRe.FindStringSubmatch(body.Item.Message.Message)
	if len(m) < 2 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	jobID := m[1]

	cred, err := s.resolver.Credential(ctx, auth.Identity.ClientKey)
	if err != nil {
		log.Debug("job link seen but tenant not configured")
		w.WriteHeader(http.StatusOK)
		return
	}
	api := s.resolver.Client(cred)

	raw, err := api.GetJob(ctx, jobID)
	if err != nil {
		log.Warn("job fetch failed", logx.String("job_id", jobID), logx.Err(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	assets, err := api.GetJobAssets(ctx, jobID)
	if err != nil {
		// No partial cards: job and assets either both render or the
		// card is skipped.
		log.Warn("asset fetch failed", logx.String("job_id", jobID), logx.Err(err))
		w.WriteHeader(http.StatusOK)
		return
	}

	job := sauce.JobFromRaw(raw)
	crd, plain := card.Build(job, assets, cred.Hostname)
	opts := &hipchat.MessageOptions{
		MessageFormat: "html",
		Color:         card.StatusColor(job.Status),
	}
	if err := s.chat.SendMessage(ctx, auth.ClientInfo, auth.Identity.RoomID, plain, opts, &crd); err != nil {
		log.Warn("card post failed", logx.String("job_id", jobID), logx.Err(err))
		w.WriteHeader(http.StatusOK)
		return
	}
	if s.met != nil {
		s.met.CardsBuilt.Inc()
	}
	w.WriteHeader(http.StatusOK)
}

// ---- lifecycle ----

type installPayload struct {
	ClientKey   string `json:"clientKey"`
	OauthID     string `json:"oauthId"`
	OauthSecret string `json:"oauthSecret"`
	GroupID     int64  `json:"groupId"`
	RoomID      int64  `json:"roomId"`
	APIBaseURL  string `json:"apiBaseUrl"`
}

func (s *Server) installed(w http.ResponseWriter, r *http.Request) {
	var p installPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	clientKey := p.ClientKey
	if clientKey == "" {
		// The platform uses the OAuth id as the client key.
		clientKey = p.OauthID
	}
	if clientKey == "" {
		http.Error(w, "missing client key", http.StatusBadRequest)
		return
	}

	ci := hipchat.ClientInfo{
		ClientKey:   clientKey,
		OauthID:     p.OauthID,
		OauthSecret: p.OauthSecret,
		GroupID:     p.GroupID,
		APIBaseURL:  p.APIBaseURL,
	}
	if err := s.life.OnInstalled(r.Context(), clientKey, ci, p.RoomID); err != nil {
		s.log.Error("install failed", logx.String("client_key", clientKey), logx.Err(err))
		http.Error(w, "install failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uninstalled(w http.ResponseWriter, r *http.Request) {
	clientKey := mux.Vars(r)["clientKey"]
	if err := s.life.OnUninstalled(r.Context(), clientKey); err != nil {
		s.log.Error("uninstall cleanup failed", logx.String("client_key", clientKey), logx.Err(err))
		http.Error(w, "cleanup failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package tts

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/TobiSchelling/briefcast/internal/config"
)

// Engine turns text into encoded audio.
type Engine interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// MiniMaxEngine calls the MiniMax T2A v2 HTTP API.
type MiniMaxEngine struct {
	cfg     config.TTS
	apiKey  string
	groupID string
	client  *http.Client
	limiter *rate.Limiter
}

// NewMiniMaxEngine creates an engine from the tts config section. Requests
// are paced at cfg.RequestsPerSecond when it is positive.
func NewMiniMaxEngine(cfg config.TTS, apiKey, groupID string) *MiniMaxEngine {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &MiniMaxEngine{
		cfg:     cfg,
		apiKey:  apiKey,
		groupID: groupID,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}
}

// IsConfigured reports whether an API key is set.
func (m *MiniMaxEngine) IsConfigured() bool {
	return m.apiKey != ""
}

type voiceSetting struct {
	VoiceID string  `json:"voice_id"`
	Speed   float64 `json:"speed"`
	Vol     float64 `json:"vol"`
	Pitch   int     `json:"pitch"`
	Emotion string  `json:"emotion,omitempty"`
}

type audioSetting struct {
	SampleRate int    `json:"sample_rate"`
	Bitrate    int    `json:"bitrate"`
	Format     string `json:"format"`
	Channel    int    `json:"channel"`
}

type t2aRequest struct {
	Model         string       `json:"model"`
	Text          string       `json:"text"`
	Stream        bool         `json:"stream"`
	VoiceSetting  voiceSetting `json:"voice_setting"`
	AudioSetting  audioSetting `json:"audio_setting"`
	LanguageBoost string       `json:"language_boost"`
}

type t2aResponse struct {
	Data struct {
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
	BaseResp struct {
		StatusCode int    `json:"status_code"`
		StatusMsg  string `json:"status_msg"`
	} `json:"base_resp"`
}

// Synthesize returns the decoded audio bytes for text.
func (m *MiniMaxEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if m.apiKey == "" {
		return nil, errors.New("MINIMAX_API_KEY is not set")
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	payload := t2aRequest{
		Model: m.cfg.Model,
		Text:  text,
		VoiceSetting: voiceSetting{
			VoiceID: m.cfg.Voice,
			Speed:   m.cfg.Speed,
			Vol:     m.cfg.Volume,
			Pitch:   m.cfg.Pitch,
			Emotion: m.cfg.Emotion,
		},
		AudioSetting: audioSetting{
			SampleRate: m.cfg.SampleRate,
			Bitrate:    m.cfg.Bitrate,
			Format:     m.cfg.Format,
			Channel:    1,
		},
		LanguageBoost: "auto",
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := m.cfg.BaseURL
	if m.groupID != "" {
		endpoint += "?GroupId=" + url.QueryEscape(m.groupID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("minimax: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("minimax returned %d: %s", resp.StatusCode, string(body))
	}

	var result t2aResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.BaseResp.StatusCode != 0 {
		return nil, fmt.Errorf("minimax error %d: %s", result.BaseResp.StatusCode, result.BaseResp.StatusMsg)
	}
	if result.Data.Audio == "" {
		return nil, errors.New("minimax returned no audio")
	}

	audio, err := hex.DecodeString(result.Data.Audio)
	if err != nil {
		return nil, fmt.Errorf("decoding audio: %w", err)
	}
	return audio, nil
}

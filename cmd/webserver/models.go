package main

import (
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/history"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
)

// --- 请求结构体 ---

type StartRunRequest struct {
	AudioPath string `json:"audio_path"`
}

// --- 响应结构体 ---

type BaseResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg,omitempty"` // omitempty 表示如果为空则不包含在 JSON 中
}

type StartRunResponse struct {
	BaseResponse
	Data *struct {
		RunID string `json:"run_id"`
	} `json:"data,omitempty"`
}

type StatusResponse struct {
	BaseResponse
	Data *models.Snapshot `json:"data,omitempty"`
}

// SegmentView 段落的展示形式
type SegmentView struct {
	Index       int     `json:"index"`
	Timestamp   string  `json:"timestamp"` // MM:SS
	Start       float64 `json:"start"`
	Original    string  `json:"original"`
	Translation string  `json:"translation"`
}

type SegmentsResponse struct {
	BaseResponse
	Data *SegmentsData `json:"data,omitempty"`
}

type SegmentsData struct {
	RunID          string        `json:"run_id"`
	Segments       []SegmentView `json:"segments"`
	OriginalText   string        `json:"original_text"`   // [MM:SS] 原文块
	TranslatedText string        `json:"translated_text"` // [MM:SS] 译文块
}

type PlayResponse struct {
	BaseResponse
	Data *struct {
		TaskID string `json:"task_id"`
	} `json:"data,omitempty"`
}

type PlaybackStatusResponse struct {
	BaseResponse
	Data *PlaybackStatusData `json:"data,omitempty"`
}

type PlaybackStatusData struct {
	Status string                 `json:"status"` // PENDING, RUNNING, SUCCESS, FAILED
	Error  string                 `json:"error,omitempty"`
	Report *models.PlaybackReport `json:"report,omitempty"`
}

type HistoryResponse struct {
	BaseResponse
	Data []history.RunRecord `json:"data"`
}

// --- 播放任务内部表示 ---
type PlaybackTask struct {
	ID     string
	RunID  string
	Status string // PENDING, RUNNING, SUCCESS, FAILED
	Error  string
	Report *models.PlaybackReport
}

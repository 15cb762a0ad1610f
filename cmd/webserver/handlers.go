package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ccp-p/asr-media-cli/audio-translator/internal/controller"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/export"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/pipeline"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// server 把控制器暴露为HTTP接口
type server struct {
	pc        *controller.ProcessorController
	playbacks *playbackTasks
}

func newServer(pc *controller.ProcessorController) *server {
	return &server{pc: pc, playbacks: &playbackTasks{}}
}

// --- Helper Functions ---

// respondWithError 发送错误 JSON 响应
func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, BaseResponse{Code: code, Msg: message})
}

// respondWithJSON 发送 JSON 响应
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		utils.Error("JSON 序列化错误: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"code": 500, "msg": "内部服务器错误：无法序列化响应"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// apiHandler 根据路径分发到不同的处理器
func (s *server) apiHandler(w http.ResponseWriter, r *http.Request) {
	utils.Debug("接收到 API 请求: %s %s", r.Method, r.URL.Path)

	trimmedPath := strings.TrimPrefix(r.URL.Path, "/api/")

	switch {
	case trimmedPath == "runs":
		s.handleStartRun(w, r)
	case trimmedPath == "status":
		s.handleStatus(w, r)
	case trimmedPath == "segments":
		s.handleSegments(w, r)
	case trimmedPath == "cancel":
		s.handleCancel(w, r)
	case trimmedPath == "play":
		s.handlePlay(w, r)
	// playback 后面跟着 task_id
	case strings.HasPrefix(trimmedPath, "playback/"):
		s.handlePlaybackStatus(w, r)
	case trimmedPath == "history":
		s.handleHistory(w, r)
	default:
		utils.Warn("未找到 API 处理器: %s", r.URL.Path)
		respondWithError(w, http.StatusNotFound, "未找到接口")
	}
}

// --- API Handlers ---

// handleStartRun 开始新的运行，已有运行时返回409
func (s *server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 POST 方法")
		return
	}

	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "无效的请求体: "+err.Error())
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.AudioPath) == "" {
		respondWithError(w, http.StatusBadRequest, "缺少必要的字段 (audio_path)")
		return
	}

	// 运行不跟随请求的生命周期
	handle, err := s.pc.StartRun(s.pc.Context(), req.AudioPath)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		respondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := StartRunResponse{BaseResponse: BaseResponse{Code: 0}}
	resp.Data = &struct {
		RunID string `json:"run_id"`
	}{RunID: handle.Run.ID}
	respondWithJSON(w, http.StatusAccepted, resp)
}

// handleStatus 返回当前快照
func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 GET 方法")
		return
	}

	snap := s.pc.Snapshot()
	respondWithJSON(w, http.StatusOK, StatusResponse{BaseResponse: BaseResponse{Code: 0}, Data: &snap})
}

// handleSegments 返回就绪后的原文和译文
func (s *server) handleSegments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 GET 方法")
		return
	}

	segs, ok := s.pc.Segments()
	if !ok {
		respondWithError(w, http.StatusConflict, pipeline.ErrNotReady.Error())
		return
	}

	views := make([]SegmentView, 0, len(segs))
	for _, seg := range segs {
		views = append(views, SegmentView{
			Index:       seg.Index,
			Timestamp:   seg.Timestamp(),
			Start:       seg.StartSeconds,
			Original:    seg.OriginalText,
			Translation: seg.TranslatedText,
		})
	}

	respondWithJSON(w, http.StatusOK, SegmentsResponse{
		BaseResponse: BaseResponse{Code: 0},
		Data: &SegmentsData{
			RunID:          s.pc.Snapshot().RunID,
			Segments:       views,
			OriginalText:   export.RenderOriginal(segs),
			TranslatedText: export.RenderTranslated(segs),
		},
	})
}

// handleCancel 取消正在识别或翻译的运行
func (s *server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 POST 方法")
		return
	}

	if !s.pc.Cancel() {
		respondWithError(w, http.StatusConflict, "没有可取消的运行")
		return
	}
	respondWithJSON(w, http.StatusOK, BaseResponse{Code: 0, Msg: "运行已取消"})
}

// handlePlay 在后台播放全部译文，返回任务ID
func (s *server) handlePlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 POST 方法")
		return
	}

	snap := s.pc.Snapshot()
	if snap.State != models.StateReady {
		respondWithError(w, http.StatusConflict, pipeline.ErrNotReady.Error())
		return
	}

	taskID := s.playbacks.create(s.pc.Context(), snap.RunID, s.pc.PlayAll)

	resp := PlayResponse{BaseResponse: BaseResponse{Code: 0}}
	resp.Data = &struct {
		TaskID string `json:"task_id"`
	}{TaskID: taskID}
	respondWithJSON(w, http.StatusAccepted, resp)
}

// handlePlaybackStatus 查询播放任务，路径为 /api/playback/{task_id}
func (s *server) handlePlaybackStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 GET 方法")
		return
	}

	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) != 3 || pathParts[2] == "" {
		respondWithError(w, http.StatusBadRequest, "无效的请求路径格式，应为 /api/playback/{task_id}")
		return
	}

	task, found := s.playbacks.get(pathParts[2])
	if !found {
		respondWithError(w, http.StatusNotFound, "未找到指定的任务")
		return
	}

	respondWithJSON(w, http.StatusOK, PlaybackStatusResponse{
		BaseResponse: BaseResponse{Code: 0},
		Data: &PlaybackStatusData{
			Status: task.Status,
			Error:  task.Error,
			Report: task.Report,
		},
	})
}

// handleHistory 列出最近的运行，?limit=N
func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondWithError(w, http.StatusMethodNotAllowed, "只允许 GET 方法")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "无效的 'limit' 参数")
			return
		}
		limit = n
	}

	runs, err := s.pc.ListHistory(r.Context(), limit)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, HistoryResponse{BaseResponse: BaseResponse{Code: 0}, Data: runs})
}

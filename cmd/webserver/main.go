package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ccp-p/asr-media-cli/audio-translator/internal/controller"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/models"
	"github.com/ccp-p/asr-media-cli/audio-translator/pkg/utils"
)

// spaHandler 结构用于处理单页应用路由
type spaHandler struct {
	staticPath string
	indexPath  string
}

// ServeHTTP 实现 http.Handler 接口
func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := filepath.Join(h.staticPath, filepath.Clean("/"+r.URL.Path))

	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		// 文件不存在，提供 index.html
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	} else if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
}

// newMux 注册API和可选的静态页面
func newMux(s *server, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", s.apiHandler)
	if staticDir != "" {
		mux.Handle("/", spaHandler{staticPath: staticDir, indexPath: "index.html"})
	}
	return mux
}

func main() {
	configFile := flag.String("config", "", "配置文件路径 (JSON 或 YAML)")
	addr := flag.String("addr", ":8080", "监听地址")
	staticDir := flag.String("static", "", "前端静态文件目录，为空则只提供API")
	flag.Parse()

	cfg := models.NewDefaultConfig()
	if *configFile != "" {
		if err := cfg.LoadFromFile(*configFile); err != nil {
			utils.Warn("配置加载失败: %v，将使用默认配置", err)
		}
	}
	cfg.ApplyEnv()
	// 服务端没有终端进度条
	cfg.ShowProgress = false

	if err := utils.InitLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		utils.Error("初始化日志失败: %v", err)
		os.Exit(1)
	}

	if *staticDir != "" {
		if _, err := os.Stat(*staticDir); os.IsNotExist(err) {
			utils.Error("静态文件目录 '%s' 不存在", *staticDir)
			os.Exit(1)
		}
		utils.Info("将从目录 '%s' 提供静态文件", *staticDir)
	}

	pc, err := controller.NewProcessorController(cfg)
	if err != nil {
		utils.Error("初始化失败: %v", err)
		os.Exit(1)
	}
	defer pc.Cleanup()
	pc.SetupSignalHandlers()

	s := newServer(pc)
	srv := &http.Server{Addr: *addr, Handler: newMux(s, *staticDir)}

	go func() {
		<-pc.Context().Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	utils.Info("服务器启动，监听地址 %s", *addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Error("服务器启动失败: %v", err)
	}
	s.playbacks.wait()
	utils.Info("服务器已停止")
}

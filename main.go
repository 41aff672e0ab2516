package main

import (
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spaghettifunk/shaderpixel/engine"
	"github.com/spaghettifunk/shaderpixel/engine/core"
)

func init() {
	// GLFW and the Vulkan queue must stay on the main thread
	runtime.LockOSThread()
}

func main() {
	var app engine.ApplicationConfig
	flag.StringVar(&app.ConfigPath, "config", "config.toml", "configuration file")
	flag.StringVar(&app.Scene, "scene", "", "scene description, overrides the configuration")
	flag.StringVar(&app.Env, "env", "", "room OBJ model, overrides the configuration")
	flag.StringVar(&app.LogLevel, "log", "", "log level: debug, info, warn or error")
	flag.StringVar(&app.PresentMode, "present", "", "present mode: fifo, fifo_relaxed, mailbox or immediate")
	flag.BoolVar(&app.Validation, "validation", false, "enable the Vulkan validation layers")
	flag.BoolVar(&app.NoWatch, "no-watch", false, "disable shader hot reload")
	flag.Parse()

	cfg, err := app.Load()
	if err != nil {
		core.LogFatal("%s", err)
	}

	e := engine.New(cfg)
	if err := e.Initialize(); err != nil {
		_ = e.Shutdown()
		core.LogFatal("initialize: %s", err)
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		<-sigCh
		e.Quit()
	}()

	runErr := e.Run()
	if err := e.Shutdown(); err != nil {
		core.LogError("shutdown: %s", err)
	}
	if runErr != nil {
		core.LogFatal("%s", runErr)
	}
}

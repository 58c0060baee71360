// Command tftpd serves a directory over TFTP.
//
// Configuration comes from an optional INI file plus command-line
// flags; flags win. With -d the server detaches from the terminal
// and logs to the configured file. SIGINT or SIGTERM stops the
// listener; transfers already in flight finish against their own
// timeouts.
package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/9466/daemon"
	"github.com/9466/goconfig"
	"golang.org/x/net/context"

	"aqwari.net/net/tftp"
)

var (
	confFile   = flag.String("c", "", "configuration file")
	pidFile    = flag.String("p", "", "pid file")
	listenAddr = flag.String("addr", "", "UDP address to listen on (overrides config)")
	rootDir    = flag.String("root", "", "directory to serve (overrides config)")
	daemonize  = flag.Bool("d", false, "detach from the terminal")
	verbose    = flag.Bool("v", false, "log every request and transfer")
)

type config struct {
	addr       string
	root       string
	timeout    time.Duration
	maxRetries int
	logFile    string
}

func loadConfig(path string) (*config, error) {
	cfg := &config{addr: ":6969", root: "."}
	if path == "" {
		return cfg, nil
	}
	f, err := goconfig.ReadConfigFile(path)
	if err != nil {
		return nil, err
	}
	if s, err := f.GetString("server", "listen"); err == nil && s != "" {
		cfg.addr = s
	}
	if s, err := f.GetString("server", "root"); err == nil && s != "" {
		cfg.root = s
	}
	if s, err := f.GetString("server", "timeout"); err == nil && s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("timeout: %v", err)
		}
		cfg.timeout = d
	}
	if s, err := f.GetString("server", "retries"); err == nil && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("retries: %v", err)
		}
		cfg.maxRetries = n
	}
	if s, err := f.GetString("log", "logFile"); err == nil {
		cfg.logFile = s
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	cfg, err := loadConfig(*confFile)
	if err != nil {
		log.Fatalln("tftpd: config:", err)
	}
	if *listenAddr != "" {
		cfg.addr = *listenAddr
	}
	if *rootDir != "" {
		cfg.root = *rootDir
	}

	if *daemonize {
		if _, err := daemon.Daemon(1, 0); err != nil {
			log.Fatalln("tftpd: daemonize:", err)
		}
	}

	if *pidFile != "" {
		pid := strconv.Itoa(os.Getpid())
		if err := ioutil.WriteFile(*pidFile, []byte(pid), 0666); err != nil {
			log.Fatalln("tftpd: pid file:", err)
		}
		defer os.Remove(*pidFile)
	}

	logDest := os.Stderr
	if *daemonize {
		name := cfg.logFile
		if name == "" {
			name = os.DevNull
		}
		logDest, err = os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalln("tftpd: log file:", err)
		}
		defer logDest.Close()
	}
	logger := log.New(logDest, "", log.LstdFlags)

	srv := tftp.Server{
		Addr:       cfg.addr,
		Root:       cfg.root,
		Timeout:    cfg.timeout,
		MaxRetries: cfg.maxRetries,
		ErrorLog:   logger,
	}
	if *verbose {
		srv.TraceLog = logger
	}

	sch := make(chan os.Signal, 1)
	signal.Notify(sch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sch
		logger.Printf("tftpd: %s received, shutting down", sig)
		cx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(cx); err != nil {
			logger.Printf("tftpd: shutdown: %v", err)
			os.Exit(1)
		}
	}()

	logger.Printf("tftpd: serving %s on %s", cfg.root, cfg.addr)
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatalln("tftpd:", err)
	}
	logger.Println("tftpd: stopped")
}

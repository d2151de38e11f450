// Copyright 2026 The driftfs Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command driftfs mounts a local-storage directory as a FUSE passthrough
// filesystem, coordinating per-project advisory locks with any configured
// peer machines.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"
	"github.com/spf13/cobra"

	"github.com/driftfs/driftfs/internal/activity"
	"github.com/driftfs/driftfs/internal/config"
	"github.com/driftfs/driftfs/internal/dispatcher"
	"github.com/driftfs/driftfs/internal/handles"
	"github.com/driftfs/driftfs/internal/lock"
	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/internal/mountutil"
	"github.com/driftfs/driftfs/internal/pathfs"
)

var (
	mountDirectory string
	localStorage   string
	configPath     string
	fuseOptions    []string
)

var rootCmd = &cobra.Command{
	Use:   "driftfs",
	Short: "Mount a local directory as a FUSE passthrough filesystem with distributed project locking",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&mountDirectory, "mount-directory", "m", "", "directory to mount the filesystem at (required)")
	rootCmd.Flags().StringVarP(&localStorage, "local-storage", "l", "", "backing directory the filesystem reads and writes through to (required)")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to the machine configuration file (required)")
	rootCmd.Flags().StringArrayVarP(&fuseOptions, "option", "o", nil, "extra FUSE mount option(s), e.g. -o default_permissions")

	for _, name := range []string{"mount-directory", "local-storage", "config"} {
		if err := rootCmd.MarkFlagRequired(name); err != nil {
			panic(fmt.Sprintf("driftfs: registering required flag %q: %v", name, err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return fmt.Errorf("driftfs: initializing logging: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("driftfs: loading config: %w", err)
	}

	storageRoot, err := mountutil.ResolveDirectory(localStorage)
	if err != nil {
		return fmt.Errorf("driftfs: resolving local storage directory: %w", err)
	}
	mountPoint, err := mountutil.ResolveDirectory(mountDirectory)
	if err != nil {
		return fmt.Errorf("driftfs: resolving mount directory: %w", err)
	}

	logger.Infof("driftfs: machine %q (%s) mounting %q -> %q", cfg.Machine.Name, cfg.Machine.Mode, storageRoot, mountPoint)

	ix := lock.NewIndex()
	peers := make(map[string]string, len(cfg.Network))
	for name, peer := range cfg.Network {
		peers[name] = peer.Endpoint
	}
	broadcaster := lock.NewBroadcaster(cfg.Machine.Name, peers)
	tracker := activity.New(cfg.Machine.Name, ix, broadcaster)
	followers := activity.NewFollowers(tracker)

	registry := pathfs.New()
	handleTable := handles.NewTable()
	fsImpl := dispatcher.New(storageRoot, mountPoint, registry, handleTable, tracker, followers)

	server := fuseutil.NewFileSystemServer(fsImpl)
	mountCfg := mountutil.BuildMountConfig(mountutil.Options{
		FSName:  "driftfs",
		Subtype: "driftfs",
		Extra:   fuseOptions,
	})

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		return fmt.Errorf("driftfs: mounting %q: %w", mountPoint, err)
	}

	httpServer := &http.Server{Addr: cfg.Machine.Endpoint, Handler: lock.NewServer(ix)}
	httpErrs := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrs <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Infof("driftfs: received %s, shutting down", sig)
	case err := <-httpErrs:
		logger.Errorf("driftfs: lock HTTP service: %v", err)
	}

	return shutdown(mfs, mountPoint, httpServer)
}

func shutdown(mfs *fuse.MountedFileSystem, mountPoint string, httpServer *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("driftfs: lock HTTP service shutdown: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		err := fuse.Unmount(mountPoint)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("driftfs: unmounting %q: %w", mountPoint, err)
		}
		time.Sleep(100 * time.Millisecond)
	}

	if err := mfs.Join(context.Background()); err != nil {
		return fmt.Errorf("driftfs: joining mount: %w", err)
	}
	return logger.Close()
}

func initLogging() error {
	severity := strings.ToUpper(os.Getenv("DRIFTFS_LOG_LEVEL"))
	if severity == "" {
		severity = logger.INFO
	}
	format := strings.ToLower(os.Getenv("DRIFTFS_LOG_FORMAT"))
	if format == "" {
		format = "text"
	}
	return logger.Init(logger.Config{Severity: severity, Format: format})
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/emmett/whispering/internal/config"
	grpcserver "github.com/emmett/whispering/internal/server/grpc"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
	GitBranch = "unknown"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file (reads server.grpc_addr)")
	addr        = flag.String("addr", "", "Daemon gRPC address (overrides server.grpc_addr)")
	watch       = flag.Bool("watch", false, "Print every status change until interrupted")
	timeout     = flag.Duration("timeout", 3*time.Second, "Timeout for a single status check")
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Whispering CLI v%s\n", Version)
		fmt.Printf("  Commit:  %s\n", GitCommit)
		fmt.Printf("  Branch:  %s\n", GitBranch)
		fmt.Printf("  Built:   %s\n", BuildTime)
		os.Exit(0)
	}

	serving, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
	if !serving {
		os.Exit(1)
	}
}

func run() (bool, error) {
	target := *addr
	if target == "" {
		cfg, _, err := config.LoadWithFallback(*configFile)
		if err != nil {
			return false, err
		}
		target = cfg.Server.GRPCAddr
	}
	if target == "" {
		return false, fmt.Errorf("no daemon address: set server.grpc_addr or pass --addr")
	}

	client, err := grpcserver.Dial(target)
	if err != nil {
		return false, err
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *watch {
		var last healthpb.HealthCheckResponse_ServingStatus
		err := client.Watch(ctx, func(s healthpb.HealthCheckResponse_ServingStatus) {
			last = s
			fmt.Printf("%s %s\n", time.Now().Format("15:04:05"), s)
		})
		return last == healthpb.HealthCheckResponse_SERVING, err
	}

	checkCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	status, err := client.Status(checkCtx)
	if err != nil {
		return false, err
	}
	fmt.Println(status)
	return status == healthpb.HealthCheckResponse_SERVING, nil
}

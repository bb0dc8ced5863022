package main

import (
	"fmt"
	"io"
)

func printUsage(w io.Writer) {
	if w == nil {
		return
	}
	fmt.Fprintln(w, "Usage")
	fmt.Fprintln(w, "  admission [print_config] [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags")
	fmt.Fprintln(w, "  config string config file path")
	fmt.Fprintln(w, "  listen_addr string http listen address")
	fmt.Fprintln(w, "  enable_auth bool enable admin auth")
	fmt.Fprintln(w, "  admin_token string admin bearer token")
	fmt.Fprintln(w, "  redis_addr string redis address")
	fmt.Fprintln(w, "  rules_file string seed rules file")
	fmt.Fprintln(w, "  flush_interval_ms int stats flush interval ms")
	fmt.Fprintln(w, "  sweep_interval_ms int state sweep interval ms")
	fmt.Fprintln(w, "  breaker_failure_threshold int breaker failure threshold")
	fmt.Fprintln(w, "  breaker_open_ms int breaker open ms")
	fmt.Fprintln(w, "  metrics_namespace string prometheus namespace")
}

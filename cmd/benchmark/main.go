package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"historytree/pkg/client"
	"historytree/pkg/core"

	"github.com/spf13/cobra"
)

func main() {
	var nReq int

	root := &cobra.Command{
		Use:   "historytree-bench",
		Short: "Measure history tree operations",
	}
	root.PersistentFlags().IntVarP(&nReq, "count", "n", 5000, "number of operations per run")

	local := &cobra.Command{
		Use:   "local",
		Short: "Benchmark the in-process tree",
		Run: func(cmd *cobra.Command, args []string) {
			runLocalBenchmark(nReq)
		},
	}

	var httpAddr, tcpAddr string
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Compare HTTP and TCP against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("historytree protocol benchmark (N=%d)\n", nReq)
			fmt.Printf("  HTTP=%s  TCP=%s\n", httpAddr, tcpAddr)
			fmt.Println("---------------------------------------------------")

			fmt.Println(">> Starting HTTP Benchmark (JSON over HTTP 1.1)...")
			httpDuration, err := runHTTPBenchmark(httpAddr, nReq)
			if err != nil {
				return err
			}
			fmt.Printf("   HTTP Time: %v | QPS: %.0f\n\n", httpDuration, float64(nReq)/httpDuration.Seconds())

			fmt.Println(">> Starting TCP Benchmark (Binary Protocol)...")
			tcpDuration, err := runTCPBenchmark(tcpAddr, nReq)
			if err != nil {
				return err
			}
			fmt.Printf("   TCP  Time: %v | QPS: %.0f\n", tcpDuration, float64(nReq)/tcpDuration.Seconds())

			fmt.Println("---------------------------------------------------")
			fmt.Printf("TCP/HTTP speedup: %.2fx\n", httpDuration.Seconds()/tcpDuration.Seconds())
			return nil
		},
	}
	remote.Flags().StringVar(&httpAddr, "http", "http://localhost:8080", "HTTP API base URL")
	remote.Flags().StringVar(&tcpAddr, "tcp", "localhost:9090", "TCP server address")

	root.AddCommand(local, remote)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runLocalBenchmark(n int) {
	ht := core.New()
	dirs := []core.Index{ht.Root()}

	start := time.Now()
	for i := 0; i < n; i++ {
		parent := dirs[i%len(dirs)]
		idx := ht.Add(parent)
		if i%16 == 0 {
			dirs = append(dirs, idx)
		}
	}
	addTime := time.Since(start)

	start = time.Now()
	for i := 1; i < len(dirs); i++ {
		dirs[i] = ht.Change(dirs[i])
	}
	changeTime := time.Since(start)

	start = time.Now()
	total := 0
	for _, d := range dirs {
		total += len(ht.Children(d))
	}
	childrenTime := time.Since(start)

	start = time.Now()
	for ht.CanUndo() {
		ht.Undo()
	}
	for ht.CanRedo() {
		ht.Redo()
	}
	moveTime := time.Since(start)

	fmt.Printf("history tree benchmark (N=%d, records=%d)\n", n, ht.Len())
	fmt.Printf("  add:      %v (%.0f ns/op)\n", addTime, perOp(addTime, n))
	fmt.Printf("  change:   %v (%.0f ns/op)\n", changeTime, perOp(changeTime, len(dirs)-1))
	fmt.Printf("  children: %v (%.0f ns/op, %d results)\n", childrenTime, perOp(childrenTime, len(dirs)), total)
	fmt.Printf("  undo+redo full history: %v\n", moveTime)
}

func perOp(d time.Duration, n int) float64 {
	if n == 0 {
		return 0
	}
	return float64(d.Nanoseconds()) / float64(n)
}

func runHTTPBenchmark(httpAddr string, n int) (time.Duration, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			MaxIdleConnsPerHost: 100,
		},
	}

	resp, err := httpClient.Post(httpAddr+"/api/docs", "application/json", nil)
	if err != nil {
		return 0, fmt.Errorf("open document: %w", err)
	}
	var opened struct {
		ID string `json:"id"`
	}
	err = json.NewDecoder(resp.Body).Decode(&opened)
	resp.Body.Close()
	if err != nil {
		return 0, err
	}

	start := time.Now()
	for i := 0; i < n; i++ {
		data := map[string]interface{}{
			"doc":    opened.ID,
			"parent": 0,
			"text":   "bench_data",
		}
		jsonData, _ := json.Marshal(data)

		resp, err := httpClient.Post(httpAddr+"/api/add", "application/json", bytes.NewReader(jsonData))
		if err != nil {
			return 0, fmt.Errorf("HTTP request failed: %w", err)
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	return time.Since(start), nil
}

func runTCPBenchmark(addr string, n int) (time.Duration, error) {
	cli, err := client.Dial(addr)
	if err != nil {
		return 0, fmt.Errorf("TCP connect failed: %w", err)
	}
	defer cli.Close()

	doc, err := cli.Open()
	if err != nil {
		return 0, err
	}
	defer cli.CloseDoc(doc)

	start := time.Now()
	for i := 0; i < n; i++ {
		if _, err := cli.Add(doc, 0, "bench_data"); err != nil {
			return 0, fmt.Errorf("TCP add failed: %w", err)
		}
	}
	return time.Since(start), nil
}

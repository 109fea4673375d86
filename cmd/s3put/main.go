package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"s3transfer/pkg/checksum"
	"s3transfer/pkg/pool"
	"s3transfer/pkg/resume"
	"s3transfer/pkg/s3engine"
	"s3transfer/pkg/transfer"
)

var (
	region      string
	endpointURL string
	accessKey   string
	secretKey   string
	partSize    int64
	checksumAlg string
	checkpoint  string
	throughput  float64
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "s3put:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "s3put",
		Short:   "Upload large objects to S3 with resumable multipart uploads",
		Version: getVersion(),
	}
	root.PersistentFlags().StringVar(&region, "region", "us-east-1", "AWS region")
	root.PersistentFlags().StringVar(&endpointURL, "endpoint", "", "custom S3-compatible endpoint URL")
	root.PersistentFlags().StringVar(&accessKey, "access-key", os.Getenv("AWS_ACCESS_KEY_ID"), "access key")
	root.PersistentFlags().StringVar(&secretKey, "secret-key", os.Getenv("AWS_SECRET_ACCESS_KEY"), "secret key")
	root.PersistentFlags().Int64Var(&partSize, "part-size", transfer.MinUploadPartSize, "part size in bytes")
	root.PersistentFlags().StringVar(&checksumAlg, "checksum", "", "checksum algorithm: CRC32, CRC32C, SHA1, SHA256")
	root.PersistentFlags().StringVar(&checkpoint, "checkpoint", "", "path to the resume checkpoint file (default: <file>.s3put-checkpoint)")
	root.PersistentFlags().Float64Var(&throughput, "throughput-target-gbps", 10, "target throughput used to size the connection budget")

	root.AddCommand(putCmd(), resumeCmd(), pauseCmd(), statusCmd())
	return root
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <bucket> <key> <file>",
		Short: "Upload a file, writing a resume checkpoint if interrupted",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(args[0], args[1], args[2], nil)
		},
	}
}

func resumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume <bucket> <key> <file>",
		Short: "Resume a previously interrupted upload from its checkpoint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := checkpointStore(args[2])
			tok, err := store.Load(checkpointKey(args[0], args[1]))
			if err != nil {
				return fmt.Errorf("load checkpoint: %w", err)
			}
			return runUpload(args[0], args[1], args[2], &tok)
		},
	}
}

func pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause <bucket> <key> <file>",
		Short: "Signal a running put/resume to pause and write its checkpoint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return pauseRunningUpload(args[2])
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <bucket> <key> <file>",
		Short: "Report whether a checkpoint exists for this upload",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store := checkpointStore(args[2])
			tok, err := store.Load(checkpointKey(args[0], args[1]))
			if err != nil {
				fmt.Println("no checkpoint found")
				return nil
			}
			fmt.Printf("upload id:      %s\n", tok.MultipartUploadID)
			fmt.Printf("partition size: %d\n", tok.PartitionSize)
			fmt.Printf("total parts:    %d\n", tok.TotalNumParts)
			return nil
		},
	}
}

func checkpointPath(file string) string {
	if checkpoint != "" {
		return checkpoint
	}
	return file + ".s3put-checkpoint"
}

func checkpointKey(bucket, key string) string { return bucket + "/" + key }

// pidPath locates the pid file a running put/resume writes next to its
// checkpoint, letting a separate `pause` invocation find and signal it.
func pidPath(file string) string { return checkpointPath(file) + ".pid" }

func pauseRunningUpload(file string) error {
	path := pidPath(file)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("no running upload found for checkpoint %s: %w", checkpointPath(file), err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return fmt.Errorf("pid file %s is corrupt: %w", path, err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	fmt.Printf("sent pause signal to pid %d; it will checkpoint to %s\n", pid, checkpointPath(file))
	return nil
}

func checkpointStore(file string) *resume.FileStore {
	path := checkpointPath(file)
	return resume.NewFileStore(func(string) string { return path })
}

func runUpload(bucket, key, file string, token *resume.Token) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	store := checkpointStore(file)
	storeKey := checkpointKey(bucket, key)

	poolCfg := pool.DefaultConfig()
	poolCfg.Region = region
	poolCfg.EndpointURL = endpointURL
	poolCfg.AccessKey = accessKey
	poolCfg.SecretKey = secretKey
	poolCfg.UserAgent = userAgent()

	client := s3engine.New(context.Background(), s3engine.Config{
		Pool:                 poolCfg,
		ThroughputTargetGbps: throughput,
		ResumeStore:          store,
	})
	defer client.Close()

	bar := progressbar.DefaultBytes(stat.Size(), fmt.Sprintf("uploading %s", filepath.Base(file)))

	pf := pidPath(file)
	if err := os.WriteFile(pf, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pf)

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\ns3put: interrupted, pausing upload and saving checkpoint...")
		cancel()
	}()
	defer signal.Stop(sigCh)

	in := transfer.UploadInput{
		Bucket:            bucket,
		Key:               key,
		Body:              f,
		ContentLength:     stat.Size(),
		PartSize:          partSize,
		ChecksumAlgorithm: checksum.Algorithm(checksumAlg),
		ResumeToken:       token,
		ProgressCallback: func(n int64) {
			_ = bar.Add64(n)
		},
	}

	out, err := client.Upload(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "s3put: upload paused; resume with `s3put resume`")
			return nil
		}
		return err
	}

	_ = store.Delete(storeKey)
	fmt.Printf("\nuploaded s3://%s/%s (etag %s)\n", out.Bucket, out.Key, out.ETag)
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/client"
	"github.com/google/uuid"
)

// Flag descriptions and messages.
const (
	flagAddrDesc         = "Base URL of the TTS job service"
	flagTextDesc         = "Text to convert to speech"
	flagVoiceDesc        = "Voice key (service default when empty)"
	flagJobIDDesc        = "Job id (random when empty)"
	flagOutputDesc       = "Output file path (.mp3, defaults to <job-id>.mp3)"
	flagPollIntervalDesc = "How often to poll the job status"
	flagTimeoutDesc      = "Give up waiting for the job after this long"
	flagHealthDesc       = "Check TTS service health and exit"
)

// Flag names.
const (
	flagAddr         = "addr"
	flagText         = "text"
	flagVoice        = "voice"
	flagJobID        = "job-id"
	flagOutput       = "output"
	flagPollInterval = "poll-interval"
	flagTimeout      = "timeout"
	flagHealth       = "health"
)

// Error and log messages.
const (
	errHealthCheckFailed = "Health check failed: %v"
	errServiceNotHealthy = "TTS service is not healthy: %v\n"
	errServiceHealthy    = "TTS service is healthy"
	errTextRequired      = "--text must be provided"
	errFailedToSubmit    = "Failed to submit job: %v"
	errJobFailed         = "Job %s failed: %s"
	errFailedToDownload  = "Failed to download job %s: %v"
)

// Log messages.
const (
	logSubmitted = "Submitted job %s (%s)"
	logFinished  = "Job %s finished with status %s"
	logGenerated = "Generated: %s (%d bytes)\n"
)

const (
	defaultAddr         = "http://localhost:3000"
	defaultPollInterval = 500 * time.Millisecond
	defaultTimeout      = 10 * time.Minute
	requestTimeout      = 30 * time.Second
	logFileName         = "tts-client.log"
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	addr         string
	text         string
	voice        string
	jobID        string
	output       string
	pollInterval time.Duration
	timeout      time.Duration
	health       bool
}

func main() {
	err := run(os.Args[1:])
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	clientLog, err := logger.New(os.TempDir(), logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer clientLog.Close()

	httpClient := client.NewHTTPClient(flags.addr, requestTimeout)

	if flags.health {
		return handleHealthCheck(httpClient, clientLog)
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	return synthesize(httpClient, clientLog, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("go-client", flag.ContinueOnError)
	flagSet.StringVar(&flags.addr, flagAddr, defaultAddr, flagAddrDesc)
	flagSet.StringVar(&flags.text, flagText, "", flagTextDesc)
	flagSet.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flagSet.StringVar(&flags.jobID, flagJobID, "", flagJobIDDesc)
	flagSet.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flagSet.DurationVar(&flags.pollInterval, flagPollInterval, defaultPollInterval, flagPollIntervalDesc)
	flagSet.DurationVar(&flags.timeout, flagTimeout, defaultTimeout, flagTimeoutDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, fmt.Errorf("failed to parse flags: %w", err)
	}

	if flags.jobID == "" {
		flags.jobID = uuid.NewString()
	}

	if flags.output == "" {
		flags.output = flags.jobID + ".mp3"
	}

	return flags, nil
}

// validateFlags checks the arguments required to submit a job.
func validateFlags(flags appFlags) error {
	if flags.text == "" {
		return errors.New(errTextRequired)
	}

	return nil
}

// handleHealthCheck performs a service health check and prints the result.
func handleHealthCheck(httpClient *client.HTTPClient, clientLog *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	err := httpClient.HealthCheck(ctx)
	if err != nil {
		clientLog.Error(errHealthCheckFailed, err)
		fmt.Printf(errServiceNotHealthy, err)

		return err
	}

	fmt.Println(errServiceHealthy)

	return nil
}

// synthesize submits the job, waits for it and writes the MP3.
func synthesize(httpClient *client.HTTPClient, clientLog *logger.Logger, flags appFlags) error {
	ctx, cancel := context.WithTimeout(context.Background(), flags.timeout)
	defer cancel()

	state, err := httpClient.Submit(ctx, client.SynthesizeRequest{
		JobID:   flags.jobID,
		Text:    flags.text,
		Voice:   flags.voice,
		Options: nil,
	})
	if err != nil {
		clientLog.Error(errFailedToSubmit, err)

		return fmt.Errorf(errFailedToSubmit, err)
	}

	clientLog.Info(logSubmitted, flags.jobID, state)

	job, err := httpClient.Wait(ctx, flags.jobID, flags.pollInterval)
	if err != nil {
		return err
	}

	clientLog.Info(logFinished, job.ID, job.State)

	if job.Error != "" {
		return fmt.Errorf(errJobFailed, job.ID, job.Error)
	}

	written, err := downloadTo(ctx, httpClient, flags.jobID, flags.output)
	if err != nil {
		clientLog.Error(errFailedToDownload, flags.jobID, err)

		return fmt.Errorf(errFailedToDownload, flags.jobID, err)
	}

	fmt.Printf(logGenerated, flags.output, written)

	return nil
}

// downloadTo writes the artifact to path, removing the file when the
// download fails.
func downloadTo(ctx context.Context, httpClient *client.HTTPClient, jobID, path string) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create output file '%s': %w", path, err)
	}

	written, err := httpClient.Download(ctx, jobID, file)
	closeErr := file.Close()

	if err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return 0, err
	}

	return written, nil
}

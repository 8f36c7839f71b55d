package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"careers-relay/internal/apply"
	"careers-relay/internal/attachment"
	"careers-relay/internal/config"
	"careers-relay/internal/logger"
	"careers-relay/internal/models"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.Must(cfg.Log)
	defer log.Sync()

	switch os.Args[1] {
	case "submit":
		err = handleSubmit(cfg, log)
	case "validate":
		err = handleValidate(cfg)
	case "roles":
		handleRoles()
	case "resume":
		err = handleResume(cfg, log)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// handleSubmit fills a form from flags and sends it through the configured transport.
func handleSubmit(cfg *config.ClientConfig, log *zap.Logger) error {
	submitCmd := flag.NewFlagSet("submit", flag.ExitOnError)
	name := submitCmd.String("name", "", "Applicant full name")
	email := submitCmd.String("email", "", "Applicant email address")
	phone := submitCmd.String("phone", "", "Phone number")
	position := submitCmd.String("position", models.DefaultRole, "Role applied for")
	experience := submitCmd.String("experience", "", "Short summary of relevant experience")
	resume := submitCmd.String("file", "", "Path to the resume")
	submitCmd.Parse(os.Args[2:])

	transport, err := apply.NewTransport(cfg, log)
	if err != nil {
		return err
	}
	form := apply.New(transport,
		apply.WithRules(cfg.Upload.Rules()),
		apply.WithRequiredFile(cfg.RequireFile),
		apply.WithLogger(log),
	)

	inputs := map[string]string{
		"name":       *name,
		"email":      *email,
		"phone":      *phone,
		"position":   *position,
		"experience": *experience,
	}
	for field, value := range inputs {
		if err := form.SetField(field, value); err != nil {
			return err
		}
	}

	if *resume != "" {
		file, err := readAttachment(*resume)
		if err != nil {
			return err
		}
		form.SelectFile(file)
		fmt.Println(form.FileLabel())
		if msg := form.FileError(); msg != "" {
			return fmt.Errorf("%s", msg)
		}
	}

	err = form.Submit(context.Background())
	if msg := form.Status().Message; msg != "" {
		fmt.Println(msg)
	}
	for field, msg := range form.FieldErrors() {
		fmt.Printf("  %s: %s\n", field, msg)
	}
	if err != nil {
		return err
	}
	if native, ok := transport.(*apply.NativeCapture); ok {
		fmt.Println(native.Landing())
	}
	return nil
}

// handleValidate checks files against the upload policy without sending anything.
func handleValidate(cfg *config.ClientConfig) error {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validateCmd.Parse(os.Args[2:])
	if validateCmd.NArg() == 0 {
		fmt.Println("At least one file is required.")
		validateCmd.Usage()
		return nil
	}

	rules := cfg.Upload.Rules()
	fmt.Println(rules.Summary())
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FILE\tTYPE\tSIZE\tRESULT")
	for _, path := range validateCmd.Args() {
		file, err := readAttachment(path)
		if err != nil {
			return err
		}
		res := attachment.Validate(attachment.FileInfo{MimeType: file.MimeType, SizeBytes: file.SizeBytes}, rules)
		result := "ok"
		if !res.OK() {
			result = res.Message
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", file.Filename, file.MimeType, attachment.FormatBytes(file.SizeBytes), result)
	}
	return w.Flush()
}

// handleRoles lists the advertised positions.
func handleRoles() {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ROLE\tDEFAULT")
	for _, role := range models.Roles {
		def := ""
		if role == models.DefaultRole {
			def = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\n", role, def)
	}
	w.Flush()
}

// handleResume reports whether a landing URL carries the success marker.
func handleResume(cfg *config.ClientConfig, log *zap.Logger) error {
	resumeCmd := flag.NewFlagSet("resume", flag.ExitOnError)
	pageURL := resumeCmd.String("url", "", "Page URL the form host redirected to")
	resumeCmd.Parse(os.Args[2:])

	if *pageURL == "" {
		fmt.Println("The -url flag is required.")
		resumeCmd.Usage()
		return nil
	}

	form := apply.New(nil, apply.WithRules(cfg.Upload.Rules()), apply.WithLogger(log))
	clean, ok, err := form.ResumeFromRedirect(*pageURL)
	if err != nil {
		return err
	}
	fmt.Println(clean)
	if ok {
		fmt.Println(form.Status().Message)
	}
	return nil
}

func readAttachment(path string) (*models.Attachment, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return &models.Attachment{
		Filename:  filepath.Base(path),
		MimeType:  mimetype.Detect(raw).String(),
		SizeBytes: int64(len(raw)),
		Content:   raw,
	}, nil
}

func printUsage() {
	fmt.Println("Usage: apply <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  submit    Fill in and send an application (-name, -email, -phone, -position, -experience, -file)")
	fmt.Println("  validate  Check resume files against the upload policy")
	fmt.Println("  roles     List the advertised roles")
	fmt.Println("  resume    Consume the success marker of a landing URL (-url)")
}

package backup

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/infrakt/infrakt/api/internal/core/remote"
)

// ObjectStoreConfig names the S3-compatible bucket a backup is replicated
// to or listed from. SecretKey is the decrypted plaintext; callers fetch it
// from the encrypted-at-rest ObjectStoreConfig row just before use.
type ObjectStoreConfig struct {
	EndpointURL string
	Bucket      string
	Region      string
	AccessKey   string
	SecretKey   string
	Prefix      string
}

const credsPath = "/tmp/.infrakt-aws-creds"

func (c ObjectStoreConfig) credentialsFile() string {
	var b strings.Builder
	b.WriteString("[default]\n")
	fmt.Fprintf(&b, "aws_access_key_id = %s\n", c.AccessKey)
	fmt.Fprintf(&b, "aws_secret_access_key = %s\n", c.SecretKey)
	return b.String()
}

func (c ObjectStoreConfig) endpointFlag() string {
	if c.EndpointURL == "" {
		return ""
	}
	return " --endpoint-url " + remote.Quote(c.EndpointURL)
}

func (c ObjectStoreConfig) key(filename string) string {
	if c.Prefix == "" {
		return filename
	}
	return strings.TrimSuffix(c.Prefix, "/") + "/" + filename
}

// SyncUp uploads localBackupPath (already present on the remote host) to the
// configured bucket. Credentials are written to a short-lived file
// immediately before the call and removed immediately after, regardless of
// outcome — the secret is never stored in a compose manifest or persisted
// unencrypted on the remote host.
func SyncUp(ctx context.Context, r remote.Runner, c ObjectStoreConfig, remoteBackupPath, filename string) error {
	if err := r.UploadString(ctx, c.credentialsFile(), credsPath); err != nil {
		return err
	}
	defer r.Run(ctx, fmt.Sprintf("rm -f %s", remote.Quote(credsPath)), 10*time.Second)

	dest := fmt.Sprintf("s3://%s/%s", c.Bucket, c.key(filename))
	cmd := fmt.Sprintf("AWS_SHARED_CREDENTIALS_FILE=%s AWS_DEFAULT_REGION=%s aws s3 cp %s %s%s",
		remote.Quote(credsPath), remote.Quote(c.Region), remote.Quote(remoteBackupPath), remote.Quote(dest), c.endpointFlag())
	_, err := r.RunChecked(ctx, cmd, 300*time.Second)
	return err
}

// ObjectSummary is one entry from an `aws s3 ls` listing.
type ObjectSummary struct {
	Timestamp string
	Size      int64
	Key       string
}

// List parses `aws s3 ls` output into (timestamp, size, filename) tuples.
func List(ctx context.Context, r remote.Runner, c ObjectStoreConfig) ([]ObjectSummary, error) {
	if err := r.UploadString(ctx, c.credentialsFile(), credsPath); err != nil {
		return nil, err
	}
	defer r.Run(ctx, fmt.Sprintf("rm -f %s", remote.Quote(credsPath)), 10*time.Second)

	src := fmt.Sprintf("s3://%s/%s", c.Bucket, strings.TrimSuffix(c.Prefix, "/"))
	cmd := fmt.Sprintf("AWS_SHARED_CREDENTIALS_FILE=%s AWS_DEFAULT_REGION=%s aws s3 ls %s%s",
		remote.Quote(credsPath), remote.Quote(c.Region), remote.Quote(src+"/"), c.endpointFlag())
	out, err := r.RunChecked(ctx, cmd, 30*time.Second)
	if err != nil {
		return nil, err
	}
	return parseS3LsOutput(out), nil
}

// parseS3LsOutput parses lines of the shape:
// "2024-01-02 03:04:05        1234 myapp_20240102_030405.sql.gz"
func parseS3LsOutput(out string) []ObjectSummary {
	var summaries []ObjectSummary
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			continue
		}
		summaries = append(summaries, ObjectSummary{
			Timestamp: fields[0] + " " + fields[1],
			Size:      size,
			Key:       strings.Join(fields[3:], " "),
		})
	}
	return summaries
}

// Download fetches key from the bucket into the standard backup directory
// on the remote host, returning the resulting remote path.
func Download(ctx context.Context, r remote.Runner, c ObjectStoreConfig, key, backupDir string) (string, error) {
	if err := r.UploadString(ctx, c.credentialsFile(), credsPath); err != nil {
		return "", err
	}
	defer r.Run(ctx, fmt.Sprintf("rm -f %s", remote.Quote(credsPath)), 10*time.Second)

	src := fmt.Sprintf("s3://%s/%s", c.Bucket, c.key(key))
	dest := strings.TrimSuffix(backupDir, "/") + "/" + key
	cmd := fmt.Sprintf("AWS_SHARED_CREDENTIALS_FILE=%s AWS_DEFAULT_REGION=%s aws s3 cp %s %s%s",
		remote.Quote(credsPath), remote.Quote(c.Region), remote.Quote(src), remote.Quote(dest), c.endpointFlag())
	if _, err := r.RunChecked(ctx, cmd, 300*time.Second); err != nil {
		return "", err
	}
	return dest, nil
}

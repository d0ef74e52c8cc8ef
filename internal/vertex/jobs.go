package vertex

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
)

// Client calls the Vertex AI pipeline, schedule and metadata services of one
// project and region.
type Client struct {
	Project string
	Region  string

	pipelines *aiplatform.PipelineClient
	schedules *aiplatform.ScheduleClient
	metadata  *aiplatform.MetadataClient
}

// RegionalEndpoint is the Vertex AI endpoint of region.
func RegionalEndpoint(region string) string {
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
}

// NewClient connects to Vertex AI over REST through httpClient. An empty
// endpoint selects the regional endpoint.
func NewClient(ctx context.Context, httpClient *http.Client, project, region, endpoint string) (*Client, error) {
	if endpoint == "" {
		endpoint = RegionalEndpoint(region)
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient), option.WithEndpoint(endpoint)}

	c := &Client{Project: project, Region: region}
	var err error
	if c.pipelines, err = aiplatform.NewPipelineRESTClient(ctx, opts...); err != nil {
		return nil, fmt.Errorf("connecting to the pipeline service: %w", err)
	}
	if c.schedules, err = aiplatform.NewScheduleRESTClient(ctx, opts...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connecting to the schedule service: %w", err)
	}
	if c.metadata, err = aiplatform.NewMetadataRESTClient(ctx, opts...); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("connecting to the metadata service: %w", err)
	}
	return c, nil
}

// Close releases the service connections.
func (c *Client) Close() error {
	var errs []error
	if c.pipelines != nil {
		errs = append(errs, c.pipelines.Close())
	}
	if c.schedules != nil {
		errs = append(errs, c.schedules.Close())
	}
	if c.metadata != nil {
		errs = append(errs, c.metadata.Close())
	}
	return errors.Join(errs...)
}

func (c *Client) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.Project, c.Region)
}

// CreatePipelineJob submits a job with the given ID.
func (c *Client) CreatePipelineJob(ctx context.Context, jobID string, job *aiplatformpb.PipelineJob) (*aiplatformpb.PipelineJob, error) {
	created, err := c.pipelines.CreatePipelineJob(ctx, &aiplatformpb.CreatePipelineJobRequest{
		Parent:        c.parent(),
		PipelineJob:   job,
		PipelineJobId: jobID,
	})
	if err != nil {
		return nil, fmt.Errorf("creating pipeline job %s: %w", jobID, err)
	}
	return created, nil
}

// EnsureExperiment creates the experiment context if it does not exist and
// returns its resource name.
func (c *Client) EnsureExperiment(ctx context.Context, experiment string) (string, error) {
	store := c.parent() + "/metadataStores/default"
	_, err := c.metadata.CreateContext(ctx, &aiplatformpb.CreateContextRequest{
		Parent:    store,
		ContextId: experiment,
		Context: &aiplatformpb.Context{
			DisplayName:   experiment,
			SchemaTitle:   "system.Experiment",
			SchemaVersion: "0.0.1",
		},
	})
	if err != nil && !IsAlreadyExists(err) {
		return "", fmt.Errorf("creating experiment %s: %w", experiment, err)
	}
	return store + "/contexts/" + experiment, nil
}

// AddToExperiment links a job's run context to an experiment context.
func (c *Client) AddToExperiment(ctx context.Context, experimentName string, job *aiplatformpb.PipelineJob) error {
	runContext := job.GetJobDetail().GetPipelineRunContext().GetName()
	if runContext == "" {
		return fmt.Errorf("job %s has no run context yet", job.GetName())
	}
	_, err := c.metadata.AddContextChildren(ctx, &aiplatformpb.AddContextChildrenRequest{
		Context:       experimentName,
		ChildContexts: []string{runContext},
	})
	if err != nil {
		return fmt.Errorf("linking job to experiment: %w", err)
	}
	return nil
}

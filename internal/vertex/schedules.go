package vertex

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/iterator"
)

// ListSchedules returns the schedules with the given display name, newest
// first.
func (c *Client) ListSchedules(ctx context.Context, displayName string) ([]*aiplatformpb.Schedule, error) {
	it := c.schedules.ListSchedules(ctx, &aiplatformpb.ListSchedulesRequest{
		Parent:  c.parent(),
		Filter:  fmt.Sprintf("display_name=%q", displayName),
		OrderBy: "create_time desc",
	})
	var schedules []*aiplatformpb.Schedule
	for {
		s, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return schedules, nil
		}
		if err != nil {
			return nil, fmt.Errorf("listing schedules: %w", err)
		}
		schedules = append(schedules, s)
	}
}

// DeleteSchedule deletes a schedule by resource name and waits for the
// deletion to finish.
func (c *Client) DeleteSchedule(ctx context.Context, name string) error {
	op, err := c.schedules.DeleteSchedule(ctx, &aiplatformpb.DeleteScheduleRequest{Name: name})
	if err == nil {
		err = op.Wait(ctx)
	}
	if err != nil {
		return fmt.Errorf("deleting schedule %s: %w", name, err)
	}
	return nil
}

// CreateSchedule creates a schedule that submits job on cron, one run at a
// time.
func (c *Client) CreateSchedule(ctx context.Context, displayName, cron string, job *aiplatformpb.PipelineJob) (*aiplatformpb.Schedule, error) {
	created, err := c.schedules.CreateSchedule(ctx, &aiplatformpb.CreateScheduleRequest{
		Parent: c.parent(),
		Schedule: &aiplatformpb.Schedule{
			DisplayName:           displayName,
			TimeSpecification:     &aiplatformpb.Schedule_Cron{Cron: cron},
			MaxConcurrentRunCount: 1,
			Request: &aiplatformpb.Schedule_CreatePipelineJobRequest{
				CreatePipelineJobRequest: &aiplatformpb.CreatePipelineJobRequest{
					Parent:      c.parent(),
					PipelineJob: job,
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating schedule %s: %w", displayName, err)
	}
	return created, nil
}

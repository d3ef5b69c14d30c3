// Package server exposes the grading service over gRPC. Requests and
// responses are google.protobuf.Struct documents keyed like the JSON
// artifacts; ExportResults returns the XLSX workbook as BytesValue.
package server

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/exam-grader/constants"
	"github.com/joseph-ayodele/exam-grader/internal/common"
	"github.com/joseph-ayodele/exam-grader/internal/entity"
	"github.com/joseph-ayodele/exam-grader/internal/export"
	"github.com/joseph-ayodele/exam-grader/internal/services/grading"
)

// Grading is the use-case surface the server exposes. *grading.Service
// implements it.
type Grading interface {
	Submit(ctx context.Context, req grading.SubmitRequest) (entity.Job, error)
	Resume(ctx context.Context, jobID, mode string) (entity.Job, error)
	Status(ctx context.Context, jobID string) (grading.StatusView, error)
	Result(ctx context.Context, jobID string) (entity.FinalResult, error)
	Checkpoint(ctx context.Context, jobID string) (grading.CheckpointView, error)
	List(ctx context.Context) ([]entity.Job, error)
	InvalidateExamCache(ctx context.Context, examID, questionPaper, answerKey string) (string, error)
}

// GradingServer is the gRPC handler set.
type GradingServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResumeJob(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetJobStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetResult(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetCheckpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListJobs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	InvalidateExamCache(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportResults(context.Context, *structpb.Struct) (*wrapperspb.BytesValue, error)
}

type GradingService struct {
	svc    Grading
	logger *slog.Logger
}

func NewGradingService(svc Grading, logger *slog.Logger) *GradingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GradingService{svc: svc, logger: logger}
}

// RegisterGradingService registers srv and publishes its descriptor.
func RegisterGradingService(s grpc.ServiceRegistrar, srv GradingServer) {
	var logger *slog.Logger
	if gs, ok := srv.(*GradingService); ok {
		logger = gs.logger
	}
	registerDescriptor(logger)
	s.RegisterService(&serviceDesc, srv)
}

func (s *GradingService) Submit(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	job, err := s.svc.Submit(ctx, grading.SubmitRequest{
		QuestionPaper: stringField(req, "question_paper"),
		AnswerKey:     stringField(req, "answer_key"),
		StudentScript: stringField(req, "student_script"),
		StudentID:     stringField(req, "student_id"),
		Mode:          stringField(req, "exam_mode"),
	})
	if err != nil {
		s.logger.Error("grpc.submit.failed", "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(jobView(job))
}

func (s *GradingService) ResumeJob(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := requiredJobID(req)
	if err != nil {
		return nil, err
	}
	job, err := s.svc.Resume(ctx, jobID, stringField(req, "exam_mode"))
	if err != nil {
		s.logger.Warn("grpc.resume.failed", "job_id", jobID, "error", err)
		return nil, common.ToStatus(err)
	}
	return toStruct(jobView(job))
}

func (s *GradingService) GetJobStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := requiredJobID(req)
	if err != nil {
		return nil, err
	}
	v, err := s.svc.Status(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(statusView{
		JobID:             v.JobID,
		Status:            string(v.Status),
		Stage:             v.Stage,
		ExamMode:          string(v.ExamMode),
		CompletedSections: v.CompletedSections,
		Error:             v.Error,
		CreatedAt:         timestamp(v.CreatedAt),
		UpdatedAt:         timestamp(v.UpdatedAt),
	})
}

func (s *GradingService) GetResult(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := requiredJobID(req)
	if err != nil {
		return nil, err
	}
	r, err := s.svc.Result(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(r)
}

func (s *GradingService) GetCheckpoint(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	jobID, err := requiredJobID(req)
	if err != nil {
		return nil, err
	}
	v, err := s.svc.Checkpoint(ctx, jobID)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(checkpointView{
		JobID:             v.JobID,
		Stage:             v.Stage,
		ExamMode:          string(v.ExamMode),
		ExamID:            v.ExamID,
		CompletedSections: v.CompletedSections,
		HasOCR:            v.HasOCR,
		SectionsAvailable: v.SectionsAvailable,
		LastError:         v.LastError,
		CreatedAt:         timestamp(v.CreatedAt),
		UpdatedAt:         timestamp(v.UpdatedAt),
	})
}

func (s *GradingService) ListJobs(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	list, err := s.svc.List(ctx)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	views := make([]jobSummary, 0, len(list))
	for _, j := range list {
		views = append(views, jobView(j))
	}
	return toStruct(map[string]any{"jobs": views})
}

func (s *GradingService) InvalidateExamCache(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	examID, err := s.svc.InvalidateExamCache(ctx,
		stringField(req, "exam_id"),
		stringField(req, "question_paper"),
		stringField(req, "answer_key"),
	)
	if err != nil {
		return nil, common.ToStatus(err)
	}
	return toStruct(map[string]any{"exam_id": examID, "invalidated": true})
}

// ExportResults builds a workbook for the listed job ids, or for every
// known job when none are given. Jobs without a result get an error row.
func (s *GradingService) ExportResults(ctx context.Context, req *structpb.Struct) (*wrapperspb.BytesValue, error) {
	ids := stringList(req, "job_ids")
	if len(ids) == 0 {
		list, err := s.svc.List(ctx)
		if err != nil {
			return nil, common.ToStatus(err)
		}
		for _, j := range list {
			ids = append(ids, j.ID)
		}
	}
	rows := make([]export.Row, 0, len(ids))
	for _, id := range ids {
		r, err := s.svc.Result(ctx, id)
		if err != nil {
			rows = append(rows, export.Row{JobID: id, Error: err.Error()})
			continue
		}
		rows = append(rows, export.Row{JobID: id, Result: r})
	}
	b, err := export.ResultsXLSX(rows, sectionIDs(), s.logger)
	if err != nil {
		return nil, common.InternalErrorf("export: %v", err)
	}
	return wrapperspb.Bytes(b), nil
}

func requiredJobID(req *structpb.Struct) (string, error) {
	id := strings.TrimSpace(stringField(req, "job_id"))
	if id == "" {
		return "", common.InvalidArgumentError("job_id is required")
	}
	return id, nil
}

func sectionIDs() []string {
	out := make([]string, 0, len(constants.Sections))
	for _, s := range constants.Sections {
		out = append(out, s.ID)
	}
	return out
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*GradingServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodSubmit, GradingServer.Submit),
		unary(MethodResumeJob, GradingServer.ResumeJob),
		unary(MethodGetJobStatus, GradingServer.GetJobStatus),
		unary(MethodGetResult, GradingServer.GetResult),
		unary(MethodGetCheckpoint, GradingServer.GetCheckpoint),
		unary(MethodListJobs, GradingServer.ListJobs),
		unary(MethodInvalidateExamCache, GradingServer.InvalidateExamCache),
		unary(MethodExportResults, GradingServer.ExportResults),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: protoFile,
}

func unary[Resp proto.Message](name string, call func(GradingServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GradingServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(GradingServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

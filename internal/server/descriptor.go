package server

import (
	"log/slog"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	protoPackage = "grader.v1"
	protoFile    = "grader/v1/grading.proto"
	ServiceName  = protoPackage + ".GradingService"
)

// Method names.
const (
	MethodSubmit              = "Submit"
	MethodResumeJob           = "ResumeJob"
	MethodGetJobStatus        = "GetJobStatus"
	MethodGetResult           = "GetResult"
	MethodGetCheckpoint       = "GetCheckpoint"
	MethodListJobs            = "ListJobs"
	MethodInvalidateExamCache = "InvalidateExamCache"
	MethodExportResults       = "ExportResults"
)

const (
	structTypeName = ".google.protobuf.Struct"
	bytesTypeName  = ".google.protobuf.BytesValue"
)

var registerOnce sync.Once

// registerDescriptor publishes the service's file descriptor so reflection
// clients (grpcurl) can describe it. Failures are logged and leave the
// service itself working.
func registerDescriptor(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	registerOnce.Do(func() {
		if _, err := protoregistry.GlobalFiles.FindFileByPath(protoFile); err == nil {
			return
		}
		_ = publishDescriptor(protoregistry.GlobalFiles, logger)
	})
}

// publishDescriptor builds the grading file and registers it in files.
// Messages are well-known types, so the file carries only the service.
func publishDescriptor(files *protoregistry.Files, logger *slog.Logger) error {
	methods := make([]*descriptorpb.MethodDescriptorProto, 0, len(serviceDesc.Methods))
	for _, m := range serviceDesc.Methods {
		out := structTypeName
		if m.MethodName == MethodExportResults {
			out = bytesTypeName
		}
		methods = append(methods, &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(m.MethodName),
			InputType:  proto.String(structTypeName),
			OutputType: proto.String(out),
		})
	}
	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String(protoPackage),
		Dependency: []string{"google/protobuf/struct.proto", "google/protobuf/wrappers.proto"},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("GradingService"),
			Method: methods,
		}},
	}
	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		logger.Error("grpc.descriptor.build_failed", "file", protoFile, "error", err)
		return err
	}
	if err := files.RegisterFile(fd); err != nil {
		logger.Error("grpc.descriptor.register_failed", "file", protoFile, "error", err)
		return err
	}
	logger.Debug("grpc.descriptor.registered", "file", protoFile, "service", ServiceName)
	return nil
}

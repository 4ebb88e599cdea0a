package grpc

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc/metadata"
)

// headerFromMD converts gRPC metadata to canonical HTTP headers so the HTTP
// header mapping applies unchanged. Binary entries are skipped.
func headerFromMD(md metadata.MD) http.Header {
	h := make(http.Header, len(md))
	for k, vs := range md {
		if strings.HasSuffix(k, "-bin") {
			continue
		}
		for _, v := range vs {
			h.Add(k, v)
		}
	}
	return h
}

// mdFromHeader converts HTTP headers to gRPC metadata with lowercase keys.
func mdFromHeader(h http.Header) metadata.MD {
	md := make(metadata.MD, len(h))
	for k, vs := range h {
		md.Append(k, vs...)
	}
	return md
}

// withOutgoing merges md into the outgoing metadata of ctx. Keys in md
// replace existing entries.
func withOutgoing(ctx context.Context, md metadata.MD) context.Context {
	out, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		out = out.Copy()
	} else {
		out = metadata.MD{}
	}
	for k, vs := range md {
		out.Set(k, vs...)
	}
	return metadata.NewOutgoingContext(ctx, out)
}

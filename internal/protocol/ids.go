package protocol

import "github.com/google/uuid"

type NodeID string

func NewNodeID() NodeID { return NodeID("n-" + uuid.NewString()) }

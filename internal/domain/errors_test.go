package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpErrorWrapUnwrap(t *testing.T) {
	root := errors.New("root")
	err := NewPathError("noise.Load", KindIO, "./NoiseModel/fakecairo.pkl", root)

	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "path=./NoiseModel/fakecairo.pkl")
	assert.Contains(t, err.Error(), "noise.Load: io")
}

func TestIsKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("run failed: %w", NewError("evaluation.AccuracyScore", KindDegenerateReference, errors.New("reference energy is zero")))

	assert.True(t, IsKind(err, KindDegenerateReference))
	assert.False(t, IsKind(err, KindIO))
	assert.Equal(t, KindDegenerateReference, KindOf(err))
}

func TestIsKindPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("plain"), KindIO))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestNilOpError(t *testing.T) {
	var err *OpError
	assert.Equal(t, "<nil>", err.Error())
	assert.Nil(t, err.Unwrap())
}

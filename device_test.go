package iiod

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceChannelAttrRoundTrip(t *testing.T) {
	c, srv := newTestContext(t)
	srv.AddDevice(0, "ads1115")

	dev, err := c.OpenDevice("ads1115", false)
	require.NoError(t, err)
	defer dev.Close()

	n, err := dev.WriteChannelAttr("voltage0", "scale", "0.000125", false)
	require.NoError(t, err)
	assert.Equal(t, len("0.000125"), n)

	v, err := dev.ReadChannelAttr("voltage0", "scale", false)
	require.NoError(t, err)
	assert.Equal(t, "0.000125", v)
}

func TestDeviceGetTriggerUnsetIsNotFound(t *testing.T) {
	c, srv := newTestContext(t)
	srv.AddDevice(0, "ads1115")

	dev, err := c.OpenDevice("ads1115", false)
	require.NoError(t, err)
	defer dev.Close()

	// GETTRIG on a device with no attached trigger is a plain missing-attr
	// lookup against the fake's store, so it fails like any other unset
	// attribute.
	_, err = dev.GetTrigger()
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestDeviceReadAttrMissingIsNotFound(t *testing.T) {
	c, srv := newTestContext(t)
	srv.AddDevice(0, "ads1115")

	dev, err := c.OpenDevice("ads1115", false)
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.ReadAttr("does_not_exist")
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNotFound))
}

func TestDeviceCloseRemovesFromContext(t *testing.T) {
	c, srv := newTestContext(t)
	srv.AddDevice(0, "ads1115")

	dev, err := c.OpenDevice("ads1115", false)
	require.NoError(t, err)

	require.NoError(t, dev.Close())

	c.devicesMu.Lock()
	_, present := c.devices[dev.ID()]
	c.devicesMu.Unlock()
	assert.False(t, present)
}

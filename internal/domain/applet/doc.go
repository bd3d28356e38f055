// Package applet adapts a provisioned neighbourhood to the host launcher.
//
// The host calls Applet.AppletRenderers with its conductor clients and
// shared services; the returned RendererBundle mounts the forum-applet
// element through Full. The bundle has no named blocks.
//
// The applet config document registered with the sensemaker is YAML. A
// default forum config is embedded; LoadConfig reads an override.
package applet

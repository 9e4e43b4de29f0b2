// Package bootstrap prepares the process-wide pieces every afdata command needs: the
// console logger, the output and data directories, the optional metrics endpoint, and
// operator-facing explanations of startup failures.
//
// Usage:
//
//	logger, sugar := bootstrap.InitLogger(bootstrap.LoggerOptions{Debug: debug})
//	defer logger.Sync()
//
//	dirs := bootstrap.DataDirectoriesFromConfig(cfg)
//	if err := bootstrap.EnsureDataDirectories(dirs, sugar); err != nil {
//	    return err
//	}
package bootstrap
